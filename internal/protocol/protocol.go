// Package protocol defines the JSON envelopes exchanged with extensions and
// dashboards. Every envelope is an object carrying a "type" discriminator;
// inbound and outbound messages are closed sets of Go types so that each
// dispatch site can switch over them exhaustively.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tyrowin/timp-relay/internal/store"
)

// Envelope type discriminators.
const (
	TypeRegisterRole    = "register_role"
	TypeExtractRequest  = "extract_request"
	TypeScheduleData    = "schedule_data"
	TypePing            = "ping"
	TypeConnected       = "connected"
	TypeScheduleSaved   = "schedule_saved"
	TypeScheduleUpdated = "schedule_updated"
	TypePong            = "pong"
	TypeError           = "error"
)

// ParseError reports an inbound frame that is not a valid envelope.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "malformed envelope: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// Inbound is a message received from a client.
type Inbound interface {
	inbound()
}

// RegisterRole asks the server to (re)classify the sending connection.
type RegisterRole struct {
	Role string `json:"role"`
}

// ExtractRequest is sent by a dashboard to ask every extension to scrape.
type ExtractRequest struct {
	RequestID string `json:"requestId,omitempty"`
}

// ScheduleData carries an extension's extraction for one date.
type ScheduleData struct {
	Data SchedulePayload `json:"data"`
}

// SchedulePayload is the body of a schedule_data envelope.
type SchedulePayload struct {
	Fecha       string        `json:"fecha"`
	Clases      []store.Class `json:"clases"`
	URL         string        `json:"url,omitempty"`
	TotalClases *int          `json:"totalClases,omitempty"`
	Timestamp   string        `json:"timestamp,omitempty"`
}

// Ping requests a pong from the server.
type Ping struct{}

// Unknown is any well-formed envelope whose type is not recognised.
type Unknown struct {
	Type string
}

func (RegisterRole) inbound()   {}
func (ExtractRequest) inbound() {}
func (ScheduleData) inbound()   {}
func (Ping) inbound()           {}
func (Unknown) inbound()        {}

type header struct {
	Type string `json:"type"`
}

// Decode parses one transport frame into an inbound message. Frames that
// are not JSON objects, lack a type, or carry a body that does not match
// their type yield a *ParseError. Unrecognised types decode to Unknown.
func Decode(raw []byte) (Inbound, error) {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, &ParseError{Err: err}
	}
	if h.Type == "" {
		return nil, &ParseError{Err: errors.New("missing type")}
	}

	var msg Inbound
	var err error
	switch h.Type {
	case TypeRegisterRole:
		var m RegisterRole
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypeExtractRequest:
		var m ExtractRequest
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypeScheduleData:
		var m ScheduleData
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypePing:
		msg = Ping{}
	default:
		msg = Unknown{Type: h.Type}
	}
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("%s: %w", h.Type, err)}
	}
	return msg, nil
}
