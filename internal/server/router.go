// Package server dispatches inbound envelopes through the Router.
package server

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/timp-relay/internal/idgen"
	"github.com/Tyrowin/timp-relay/internal/protocol"
	"github.com/Tyrowin/timp-relay/internal/store"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Router validates inbound envelopes and dispatches them to the store or to
// a broadcast over one of the Registry's role sets. It never holds
// connection references of its own.
type Router struct {
	registry *Registry
	store    store.Store
	log      zerolog.Logger
	newID    idgen.Generator
	now      func() time.Time
}

// NewRouter returns a router over registry and st.
func NewRouter(registry *Registry, st store.Store, log zerolog.Logger) *Router {
	return &Router{
		registry: registry,
		store:    st,
		log:      log.With().Str("component", "router").Logger(),
		newID:    idgen.Default,
		now:      time.Now,
	}
}

// Handle processes one inbound frame from c. Malformed frames are logged and
// dropped; a panic while handling is logged and contained to this frame.
func (rt *Router) Handle(c *Client, frame []byte) {
	log := rt.log.With().Str("client_id", c.ID()).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).
				Msg("recovered from panic while handling message")
		}
	}()

	msg, err := protocol.Decode(frame)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(frame)).Msg("dropping malformed message")
		return
	}

	switch m := msg.(type) {
	case protocol.RegisterRole:
		rt.handleRegisterRole(c, m)
	case protocol.ExtractRequest:
		rt.handleExtractRequest(c, m)
	case protocol.ScheduleData:
		rt.handleScheduleData(c, m)
	case protocol.Ping:
		rt.reply(c, protocol.Pong{})
	case protocol.Unknown:
		log.Warn().Str("type", m.Type).Msg("unknown message type")
		rt.reply(c, protocol.Error{Message: "unknown message type: " + m.Type})
	default:
		panic(fmt.Sprintf("router: unhandled inbound message %T", msg))
	}
}

func (rt *Router) handleRegisterRole(c *Client, m protocol.RegisterRole) {
	role, err := ParseRole(m.Role)
	if err != nil {
		rt.reply(c, protocol.Error{Message: err.Error()})
		return
	}
	if _, err := rt.registry.Reclassify(c.ID(), role); err != nil {
		rt.reply(c, protocol.Error{Message: err.Error()})
		return
	}
	rt.reply(c, connectedMessage(c.ID(), role))
}

func (rt *Router) handleExtractRequest(c *Client, m protocol.ExtractRequest) {
	if !rt.requireRole(c, RoleObserver, protocol.TypeExtractRequest) {
		return
	}
	rt.RequestExtraction(m.RequestID)
}

// RequestExtraction relays an extract_request to every producer, generating
// a request id when requestID is empty. It returns the id used and the
// number of producers the request was queued for.
func (rt *Router) RequestExtraction(requestID string) (string, int) {
	if requestID == "" {
		requestID = rt.newID()
	}
	n := rt.Broadcast(RoleProducer, protocol.ExtractCommand{
		RequestID: requestID,
		Timestamp: rt.now().UTC().Format(isoMillis),
	})
	rt.log.Info().Str("request_id", requestID).Int("producers", n).Msg("extraction requested")
	return requestID, n
}

func (rt *Router) handleScheduleData(c *Client, m protocol.ScheduleData) {
	if !rt.requireRole(c, RoleProducer, protocol.TypeScheduleData) {
		return
	}
	p := m.Data
	if err := store.ValidDate(p.Fecha); err != nil {
		rt.reply(c, protocol.Error{Message: "invalid schedule_data: " + err.Error()})
		return
	}

	total := len(p.Clases)
	if p.TotalClases != nil {
		total = *p.TotalClases
	}

	// Persistence is never cancelled once started.
	ext, err := rt.store.ReplaceByDate(context.Background(), store.Submission{
		Fecha:       p.Fecha,
		URL:         p.URL,
		Timestamp:   p.Timestamp,
		SourceRole:  string(RoleProducer),
		SourceID:    c.ID(),
		TotalClases: total,
		Classes:     p.Clases,
	})
	if err != nil {
		var se *store.StorageError
		if errors.As(err, &se) {
			rt.log.Error().Err(err).Str("client_id", c.ID()).Str("fecha", p.Fecha).Msg("failed to store schedule")
		} else {
			rt.log.Warn().Err(err).Str("client_id", c.ID()).Str("fecha", p.Fecha).Msg("schedule rejected")
		}
		rt.reply(c, protocol.Error{Message: "failed to store schedule for " + p.Fecha + ": " + err.Error()})
		return
	}

	rt.reply(c, protocol.ScheduleSaved{
		ID:          ext.ID,
		Fecha:       ext.Fecha,
		TotalClases: ext.TotalClases,
		Message:     "Datos guardados correctamente",
	})
	n := rt.Broadcast(RoleObserver, protocol.ScheduleUpdated{
		Fecha:       ext.Fecha,
		TotalClases: ext.TotalClases,
		Data:        ext,
	})
	rt.log.Info().Str("client_id", c.ID()).Str("fecha", ext.Fecha).Int("clases", len(ext.Classes)).
		Int("observers", n).Msg("schedule stored")
}

// requireRole replies with an error envelope and returns false when c does
// not currently hold role.
func (rt *Router) requireRole(c *Client, role Role, msgType string) bool {
	current, ok := rt.registry.RoleOf(c.ID())
	if ok && current == role {
		return true
	}
	rt.reply(c, protocol.Error{
		Message: fmt.Sprintf("%s is only accepted from %s connections", msgType, role),
	})
	return false
}

// Broadcast queues msg for every open connection holding role and returns
// how many accepted it. A closed or full connection is skipped.
func (rt *Router) Broadcast(role Role, msg protocol.Outbound) int {
	frame := protocol.MustEncode(msg)
	sent := 0
	for _, client := range rt.registry.ByRole(role) {
		if !client.IsOpen() {
			continue
		}
		if client.Send(frame) {
			sent++
		} else {
			rt.log.Debug().Str("client_id", client.ID()).Msg("dropped broadcast frame for client")
		}
	}
	return sent
}

func (rt *Router) reply(c *Client, msg protocol.Outbound) {
	if !c.Send(protocol.MustEncode(msg)) {
		rt.log.Debug().Str("client_id", c.ID()).Msg("dropped reply for closed or full client")
	}
}
