// Package dispatch contains the public contracts and domain types shared by the
// dispatch service components.
package dispatch

import (
	"context"
)

// TokenSource supplies a currently-valid bearer credential for the messaging provider.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Sender submits exactly one message to the messaging provider.
// A provider-side rejection is returned as an *Error of KindProviderDispatch,
// never as a successful Result.
type Sender interface {
	Send(ctx context.Context, req Request) (*Result, error)
}

// Request is the inbound dispatch shape, shared by the HTTP API and the Pub/Sub pipeline.
type Request struct {
	Token string            `json:"token"`
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// Validate rejects requests that cannot be addressed to a device.
func (r Request) Validate() error {
	if r.Token == "" {
		return NewError(KindClientInput, "Missing token", nil)
	}
	return nil
}

// HasVisibleContent reports whether the request carries a user-visible
// notification (a title or a body).
func (r Request) HasVisibleContent() bool {
	return r.Title != "" || r.Body != ""
}

// Result is the provider's success outcome: its raw response body.
type Result struct {
	StatusCode int
	Body       []byte
}
