// Package upstream talks to the Upstage Solar chat-completions API.
//
// The client opens one streaming POST per call and hands the response body back as
// a lazy sequence of lines. It does not parse the lines; framing for the downstream
// client is left to the relay package.
//
// Authentication is done in the transport chain: every request goes through an
// oauth2.Transport backed by a static token source holding the resolved API key, which
// sets "Authorization: Bearer <key>".
//
//	client, err := upstream.NewClient(upstream.DefaultURL)
//	stream, err := client.Open(ctx, apiKey, body)
//	if err != nil { ... }
//	defer stream.Close()
//	for line, err := range stream.Lines() { ... }
package upstream
