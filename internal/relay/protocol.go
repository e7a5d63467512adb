// Package relay is the authenticated internal RPC link between the
// receiver and the worker. Each TCP connection carries exactly one CBOR
// request and one CBOR response; CBOR is self-delimiting so there is no
// extra framing.
package relay

import (
	"context"
)

// Request is the wire envelope sent by the client.
type Request struct {
	Command   string     `cbor:"command"`
	Token     string     `cbor:"token"`
	RequestID string     `cbor:"request_id"`
	Payload   RawMessage `cbor:"payload,omitempty"`
}

// Response is the wire envelope sent by the server. Code, Error and
// Details are set only when OK is false.
type Response struct {
	OK      bool       `cbor:"ok"`
	Code    string     `cbor:"code,omitempty"`
	Error   string     `cbor:"error,omitempty"`
	Details string     `cbor:"details,omitempty"`
	Data    RawMessage `cbor:"data,omitempty"`
}

// Outcome is what the caller of a relay request can observe.
type Outcome int

const (
	// OutcomeAccepted means the worker ran the command and succeeded.
	OutcomeAccepted Outcome = iota
	// OutcomeRejected means the worker answered ok=false.
	OutcomeRejected
	// OutcomeTransportFailure means no well-formed answer arrived. The
	// worker may or may not have performed side effects.
	OutcomeTransportFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// HandlerFunc runs one command. payload is the raw CBOR payload of the
// request. A non-nil result is CBOR encoded into Response.Data.
type HandlerFunc func(ctx context.Context, payload RawMessage) (any, error)

type requestIDKey struct{}

// RequestID returns the relay request id carried by a handler context.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
