// Package server coordinates connection acceptance, pump lifecycles and
// shutdown for the relay via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/timp-relay/internal/protocol"
	"github.com/Tyrowin/timp-relay/internal/store"
)

// Hub accepts WebSocket connections, registers them with the Registry and
// runs one read pump and one write pump per connection.
type Hub struct {
	registry *Registry
	router   *Router
	origins  *originPolicy
	upgrader websocket.Upgrader
	cfg      Config
	log      zerolog.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	stopping bool
}

// NewHub wires a registry and a router over st.
func NewHub(cfg Config, st store.Store, log zerolog.Logger) *Hub {
	cfg = cfg.Sanitize()
	log = log.With().Str("component", "hub").Logger()

	registry := NewRegistry(log)
	h := &Hub{
		registry: registry,
		router:   NewRouter(registry, st, log),
		origins:  newOriginPolicy(cfg.AllowedOrigins, log),
		cfg:      cfg,
		log:      log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.origins.check,
	}
	return h
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Router returns the hub's message router.
func (h *Hub) Router() *Router { return h.router }

// Serve registers conn under the role hint, greets it with a connected
// envelope and starts its pumps. It returns nil if the hub is shutting down.
func (h *Hub) Serve(conn *websocket.Conn, hint Role, addr string) *Client {
	h.mu.Lock()
	if h.stopping {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.wg.Add(2)
	h.mu.Unlock()

	client := NewClient(conn, h, addr)
	h.admit(client, hint)

	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
	return client
}

// admit registers client and queues its connected greeting ahead of any
// broadcast.
func (h *Hub) admit(client *Client, hint Role) string {
	return h.registry.admit(client, hint, func(id string, role Role) {
		client.Send(protocol.MustEncode(connectedMessage(id, role)))
	})
}

// disconnect removes c from the registry and discards its pending frames.
func (h *Hub) disconnect(c *Client) {
	h.registry.Unregister(c.ID())
	c.close()
}

func connectedMessage(id string, role Role) protocol.Connected {
	return protocol.Connected{
		ClientID:   id,
		ClientType: string(role),
		Message:    "Conectado como " + string(role),
	}
}

// shutdownClients closes every registered connection; their read pumps then
// unregister them.
func (h *Hub) shutdownClients() {
	clients := h.registry.All()
	for _, client := range clients {
		if client.conn == nil {
			h.disconnect(client)
			continue
		}
		_ = client.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn().Err(err).Str("addr", client.addr).Msg("error closing client connection")
		}
	}
	h.log.Info().Int("clients", len(clients)).Msg("closed client connections")
}

// Shutdown stops accepting connections, closes the live ones and waits for
// their pumps to finish or for timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.mu.Lock()
	h.stopping = true
	h.mu.Unlock()

	h.shutdownClients()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached, some pumps may still be running")
		return context.DeadlineExceeded
	}
}
