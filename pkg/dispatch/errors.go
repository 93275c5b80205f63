package dispatch

import (
	"errors"
	"fmt"
)

// Kind classifies dispatch failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration means required startup configuration is absent or malformed.
	KindConfiguration
	// KindClientInput means the inbound request was malformed or incomplete.
	KindClientInput
	// KindCredentialExchange means the token endpoint rejected the assertion or was unreachable.
	KindCredentialExchange
	// KindProviderDispatch means the send endpoint rejected the payload or was unreachable.
	KindProviderDispatch
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindClientInput:
		return "client_input"
	case KindCredentialExchange:
		return "credential_exchange"
	case KindProviderDispatch:
		return "provider_dispatch"
	default:
		return "unknown"
	}
}

// Error carries a machine-readable Kind plus the human diagnostic.
// Status is the HTTP status observed from the remote side, or 0 when no
// response was received.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

// NewError builds an Error without a remote status.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// ProviderError formats a non-success send response: status and body verbatim.
func ProviderError(status int, body []byte) *Error {
	return &Error{
		Kind:    KindProviderDispatch,
		Status:  status,
		Message: fmt.Sprintf("FCM error %d: %s", status, body),
	}
}
