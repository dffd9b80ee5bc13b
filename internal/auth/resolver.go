// Package auth resolves the upstream API key for an inbound request.
//
// Clients may bring their own key as "Authorization: Bearer <key>". Requests without
// a usable header fall back to the default key the proxy was started with.
package auth

import "strings"

// Resolver picks the upstream API key for a request.
// The default key is fixed at construction; Resolver is safe for concurrent use.
type Resolver struct {
	defaultKey string
}

// NewResolver creates a Resolver that falls back to defaultKey.
// An empty defaultKey means clients must always send their own key.
func NewResolver(defaultKey string) *Resolver {
	return &Resolver{defaultKey: defaultKey}
}

// Resolve returns the key to use for the given Authorization header value.
//
// A header of the form "<scheme> <value>" yields value; the scheme itself is not
// checked. Anything else, including an empty header, yields the default key.
// The returned key may be empty when neither source provides one.
func (r *Resolver) Resolve(authorization string) string {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" || !strings.Contains(authorization, " ") {
		return r.defaultKey
	}

	// Split on single spaces: "Bearer  key" has an empty second field and no key.
	fields := strings.Split(authorization, " ")
	return fields[1]
}

// HasDefault reports whether a default key is configured.
func (r *Resolver) HasDefault() bool {
	return r.defaultKey != ""
}
