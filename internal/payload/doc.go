// Package payload validates and rewrites inbound chat-completion bodies before they
// are forwarded upstream.
//
// Bodies are edited as raw JSON so that fields the proxy does not know about reach the
// upstream unchanged and in their original order. Each endpoint is described by a Rules
// value; Rewrite applies the checks in a fixed order:
//
//  1. the body and its first message must not repeat a key
//  2. model, when present, must be SentinelModel
//  3. model is replaced with the endpoint's upstream model
//  4. the first message must carry non-empty string content
//  5. SystemPromptPrefix is prepended to that content
//  6. the message count is checked when the endpoint requires one
//  7. stream is forced to true
package payload
