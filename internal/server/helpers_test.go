package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/timp-relay/internal/store"
)

func newTestHub(t *testing.T, st store.Store) *Hub {
	t.Helper()
	if st == nil {
		st = store.NewMemory(0, zerolog.Nop())
	}
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"*"}
	return NewHub(cfg, st, zerolog.Nop())
}

// newTestClient registers a connectionless client; frames sent to it stay
// in its send queue for inspection.
func newTestClient(t *testing.T, h *Hub, hint Role) *Client {
	t.Helper()
	c := NewClient(nil, h, "test")
	h.Registry().Register(c, hint)
	return c
}

func recvFrame(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case frame, ok := <-c.GetSendChan():
		if !ok {
			t.Fatalf("send channel of %s closed", c.ID())
		}
		var m map[string]any
		if err := json.Unmarshal(frame, &m); err != nil {
			t.Fatalf("invalid frame %s: %v", frame, err)
		}
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for frame on %s", c.ID())
	}
	return nil
}

func expectType(t *testing.T, c *Client, want string) map[string]any {
	t.Helper()
	m := recvFrame(t, c)
	if m["type"] != want {
		t.Fatalf("expected %s frame, got %v", want, m)
	}
	return m
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame, ok := <-c.GetSendChan():
		if ok {
			t.Fatalf("expected no frame for %s, got %s", c.ID(), frame)
		}
	case <-time.After(20 * time.Millisecond):
	}
}
