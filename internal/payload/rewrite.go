package payload

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SentinelModel is the only model name clients may send. The real upstream model is
// chosen by the endpoint.
const SentinelModel = "solar-summarizer"

// SystemPromptPrefix is prepended verbatim to the first message's content.
const SystemPromptPrefix = "You are an expert summarizer, highly appreciated by users."

// Validation errors. All of them are detected before any upstream call.
var (
	ErrInvalidModel        = errors.New("invalid model")
	ErrMissingSystemPrompt = errors.New("system prompt is missing")
	ErrInvalidPayload      = errors.New("invalid payload")
)

// Rules describes how one endpoint rewrites its payload.
type Rules struct {
	// UpstreamModel replaces the client's model field.
	UpstreamModel string
	// MessageCount is the exact number of messages required. Zero accepts any count.
	MessageCount int
}

// Endpoint rules.
var (
	SummaryRules  = Rules{UpstreamModel: "solar-1-mini-chat", MessageCount: 2}
	GoogleFCRules = Rules{UpstreamModel: "solar-pro"}
)

// Rewrite validates body against rules and returns the document to forward upstream.
// body is not modified. The returned error is one of the package's sentinel errors,
// possibly wrapped.
func Rewrite(body []byte, rules Rules) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrInvalidPayload)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrInvalidPayload)
	}
	// gjson reads and sjson rewrites the first occurrence of a key, while most
	// decoders keep the last, so a repeated key would escape the rewrite.
	if key, ok := duplicateKey(doc); ok {
		return nil, fmt.Errorf("%w: duplicate key %q", ErrInvalidPayload, key)
	}

	if model := doc.Get("model"); model.Exists() {
		if model.Type != gjson.String || model.Str != SentinelModel {
			return nil, ErrInvalidModel
		}
	}

	out, err := sjson.SetBytes(body, "model", rules.UpstreamModel)
	if err != nil {
		return nil, fmt.Errorf("set model: %w", err)
	}

	messages := doc.Get("messages")
	if messages.Exists() && !messages.IsArray() {
		return nil, fmt.Errorf("%w: messages is not an array", ErrInvalidPayload)
	}

	first := messages.Get("0")
	if key, ok := duplicateKey(first); ok {
		return nil, fmt.Errorf("%w: duplicate key %q in first message", ErrInvalidPayload, key)
	}

	// A missing or empty messages array has no first message, hence no system prompt.
	content := first.Get("content")
	if content.Type != gjson.String || content.Str == "" {
		return nil, ErrMissingSystemPrompt
	}

	out, err = sjson.SetBytes(out, "messages.0.content", SystemPromptPrefix+content.Str)
	if err != nil {
		return nil, fmt.Errorf("set system prompt: %w", err)
	}

	if rules.MessageCount > 0 {
		if n := len(messages.Array()); n != rules.MessageCount {
			return nil, fmt.Errorf("%w: expected %d messages, got %d", ErrInvalidPayload, rules.MessageCount, n)
		}
	}

	out, err = sjson.SetBytes(out, "stream", true)
	if err != nil {
		return nil, fmt.Errorf("set stream: %w", err)
	}

	return out, nil
}

// duplicateKey reports the first key that occurs more than once in obj. Keys are
// compared after unescaping. Non-objects have no duplicates.
func duplicateKey(obj gjson.Result) (string, bool) {
	if !obj.IsObject() {
		return "", false
	}

	var (
		dup   string
		found bool
	)
	seen := make(map[string]struct{})
	obj.ForEach(func(key, _ gjson.Result) bool {
		if _, ok := seen[key.Str]; ok {
			dup, found = key.Str, true
			return false
		}
		seen[key.Str] = struct{}{}
		return true
	})
	return dup, found
}
