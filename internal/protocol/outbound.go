package protocol

import (
	"encoding/json"

	"github.com/Tyrowin/timp-relay/internal/store"
)

// Outbound is a message the server sends to a client.
type Outbound interface {
	outboundType() string
}

// Connected greets a connection right after accept or reclassification.
type Connected struct {
	ClientID   string `json:"clientId"`
	ClientType string `json:"clientType"`
	Message    string `json:"message,omitempty"`
}

// ExtractCommand is the extract_request relayed to extensions.
type ExtractCommand struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

// ScheduleSaved acknowledges a stored extraction to its producer.
type ScheduleSaved struct {
	ID          string `json:"id"`
	Fecha       string `json:"fecha"`
	TotalClases int    `json:"totalClases"`
	Message     string `json:"message,omitempty"`
}

// ScheduleUpdated notifies dashboards that a date was (re)written.
type ScheduleUpdated struct {
	Fecha       string            `json:"fecha"`
	TotalClases int               `json:"totalClases"`
	Data        *store.Extraction `json:"data,omitempty"`
}

// Pong answers a ping.
type Pong struct{}

// Error reports a rejected message to its sender.
type Error struct {
	Message string `json:"message"`
}

func (Connected) outboundType() string       { return TypeConnected }
func (ExtractCommand) outboundType() string  { return TypeExtractRequest }
func (ScheduleSaved) outboundType() string   { return TypeScheduleSaved }
func (ScheduleUpdated) outboundType() string { return TypeScheduleUpdated }
func (Pong) outboundType() string            { return TypePong }
func (Error) outboundType() string           { return TypeError }

// Encode marshals msg as a JSON object with its type discriminator first.
func Encode(msg Outbound) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(msg.outboundType())
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(body)+len(typ)+10)
	out = append(out, `{"type":`...)
	out = append(out, typ...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}

// MustEncode is Encode for messages whose fields cannot fail to marshal.
func MustEncode(msg Outbound) []byte {
	b, err := Encode(msg)
	if err != nil {
		panic("protocol: encode " + msg.outboundType() + ": " + err.Error())
	}
	return b
}
