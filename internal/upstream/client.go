package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/oauth2"
)

// DefaultURL is the Solar chat-completions endpoint.
const DefaultURL = "https://api.upstage.ai/v1/solar/chat/completions"

// maxErrorBodyBytes caps how much of a failed response is read into Error.Body.
const maxErrorBodyBytes = 64 << 10

// Client opens streaming chat-completion requests against the upstream API.
// A Client is stateless and safe for concurrent use.
type Client struct {
	url       string
	transport http.RoundTripper
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sets the base transport used for upstream requests.
// Defaults to http.DefaultTransport.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

// NewClient creates a Client posting to url.
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("upstream url cannot be empty")
	}

	c := &Client{url: url}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// URL returns the endpoint the client posts to.
func (c *Client) URL() string {
	return c.url
}

// Open posts body to the upstream with the given API key and returns the response
// stream. The request is bound to ctx: cancelling it tears down the connection.
//
// A non-2xx response is returned as *Error with the response body read and closed.
// On success the caller owns the Stream and must Close it.
func (c *Client) Open(ctx context.Context, apiKey string, body []byte) (*Stream, error) {
	if apiKey == "" {
		return nil, errors.New("api key cannot be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	// Continue the caller's trace, if any, upstream.
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient(apiKey).Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()

		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if readErr != nil {
			return nil, fmt.Errorf("reading upstream error response (status %d): %w", resp.StatusCode, readErr)
		}
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	return newStream(resp.Body), nil
}

// httpClient builds a client whose transport authenticates with apiKey.
func (c *Client) httpClient(apiKey string) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey}),
			Base:   c.transport,
		},
		// Timeout = 0 allows long-running SSE streams; the request context bounds them.
	}
}
