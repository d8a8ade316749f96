package hostclient

import (
	"errors"
	"fmt"
)

// Kind classifies a host client failure.
type Kind string

const (
	// KindTransport means the agent could not be reached at all.
	KindTransport Kind = "transport_error"
	// KindTimeout means the call exceeded the per-host timeout.
	KindTimeout Kind = "timeout"
	// KindUnauthorized means the agent rejected the signature.
	KindUnauthorized Kind = "unauthorized"
	// KindNotFound means the referenced object does not exist on the host.
	KindNotFound Kind = "not_found"
	// KindEngine means the agent reached the engine but the call failed.
	KindEngine Kind = "engine_error"
	// KindProtocol means the agent answered with something unparseable.
	KindProtocol Kind = "protocol_error"
)

// Error is the failure type of every host client operation.
type Error struct {
	Kind   Kind
	Status int // HTTP status, 0 for client-side failures
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// IsNotFound reports whether err is a host client not-found failure.
func IsNotFound(err error) bool { return hasKind(err, KindNotFound) }

// IsTimeout reports whether err is a host client timeout.
func IsTimeout(err error) bool { return hasKind(err, KindTimeout) }

// IsUnauthorized reports whether the agent rejected the request signature.
func IsUnauthorized(err error) bool { return hasKind(err, KindUnauthorized) }

func hasKind(err error, kind Kind) bool {
	var he *Error
	return errors.As(err, &he) && he.Kind == kind
}
