package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates envelope roles on a shared mailbox. Responses echo the
// id of the request they answer; events carry a fresh id with no pending
// request behind it.
type Kind string

const (
	KindHello    Kind = "hello"    // Worker announcing its mailbox to the foreground
	KindRequest  Kind = "request"  // Foreground action request
	KindResponse Kind = "response" // Worker reply to one request
	KindEvent    Kind = "event"    // Unsolicited native-originated event
	KindClose    Kind = "close"    // Close sentinel, ends the receive loop
)

// Envelope is the unit of IPC traffic. Payloads are opaque to the transport;
// the worker only inspects Kind, ID and Action.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	ID      uuid.UUID       `json:"id"`
	Action  string          `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`

	// Reply carries a mailbox handle for the hello handshake. Handles only
	// exist in-process and are never serialized.
	Reply *Mailbox `json:"-"`
}

// IsClose reports whether the envelope is the close sentinel. A nil envelope
// (the empty/null payload of the wire contract) and an explicit close kind
// are both accepted.
func (e *Envelope) IsClose() bool {
	return e == nil || e.Kind == KindClose
}

// NewRequest builds a request envelope with a fresh correlation id.
func NewRequest(action string, payload json.RawMessage) (*Envelope, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating request id : %w", err)
	}
	return &Envelope{Kind: KindRequest, ID: id, Action: action, Payload: payload}, nil
}

// NewHello builds the handshake envelope announcing the worker's mailbox.
func NewHello(reply *Mailbox) (*Envelope, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating hello id : %w", err)
	}
	return &Envelope{Kind: KindHello, ID: id, Reply: reply}, nil
}

// NewEvent wraps an unsolicited native event. The id is fresh and correlates
// with nothing.
func NewEvent(payload json.RawMessage) (*Envelope, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating event id : %w", err)
	}
	return &Envelope{Kind: KindEvent, ID: id, Payload: payload}, nil
}

// Respond builds the success response for a request, echoing its id.
func Respond(req *Envelope, payload json.RawMessage) *Envelope {
	return &Envelope{Kind: KindResponse, ID: req.ID, Action: req.Action, Payload: payload}
}

// Fault builds the error response for a request. Faults never cross the IPC
// boundary as anything other than a response payload.
func Fault(req *Envelope, err error) *Envelope {
	return &Envelope{Kind: KindResponse, ID: req.ID, Action: req.Action, Error: err.Error()}
}
