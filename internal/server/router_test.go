package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/timp-relay/internal/protocol"
	"github.com/Tyrowin/timp-relay/internal/store"
)

// failingStore reports a storage failure for every write.
type failingStore struct {
	store.Store
}

func (failingStore) ReplaceByDate(context.Context, store.Submission) (*store.Extraction, error) {
	return nil, &store.StorageError{Op: "insert extraction", Err: errors.New("disk I/O error")}
}

// panickingStore blows up on write to exercise per-message recovery.
type panickingStore struct {
	store.Store
}

func (panickingStore) ReplaceByDate(context.Context, store.Submission) (*store.Extraction, error) {
	panic("boom")
}

const scheduleFrame = `{"type":"schedule_data","data":{"fecha":"2026-01-27","timestamp":"2026-01-27T08:00:00Z","url":"https://timp.test","clases":[{"nombre":"A","instructor":"Ana"},{"nombre":"B","instructor":"Beto"}]}}`

func TestPingPong(t *testing.T) {
	h := newTestHub(t, nil)
	sender := newTestClient(t, h, RoleUnclassified)
	other := newTestClient(t, h, RoleObserver)

	h.Router().Handle(sender, []byte(`{"type":"ping"}`))

	expectType(t, sender, "pong")
	expectNoFrame(t, sender)
	expectNoFrame(t, other)
}

// TestExtractRequestReachesOnlyProducers verifies that an observer's
// extract_request is relayed to every producer and to no observer.
func TestExtractRequestReachesOnlyProducers(t *testing.T) {
	h := newTestHub(t, nil)
	p1 := newTestClient(t, h, RoleProducer)
	p2 := newTestClient(t, h, RoleProducer)
	o1 := newTestClient(t, h, RoleObserver)
	o2 := newTestClient(t, h, RoleObserver)

	h.Router().Handle(o1, []byte(`{"type":"extract_request","requestId":"req-1"}`))

	for _, p := range []*Client{p1, p2} {
		m := expectType(t, p, "extract_request")
		if m["requestId"] != "req-1" {
			t.Errorf("expected requestId req-1, got %v", m["requestId"])
		}
		if ts, _ := m["timestamp"].(string); ts == "" {
			t.Error("expected timestamp on relayed request")
		}
	}
	expectNoFrame(t, o1)
	expectNoFrame(t, o2)
}

func TestExtractRequestGeneratesID(t *testing.T) {
	h := newTestHub(t, nil)
	p := newTestClient(t, h, RoleProducer)
	o := newTestClient(t, h, RoleObserver)

	h.Router().Handle(o, []byte(`{"type":"extract_request"}`))

	m := expectType(t, p, "extract_request")
	if id, _ := m["requestId"].(string); id == "" {
		t.Error("expected a generated requestId")
	}
}

func TestExtractRequestFromProducerRejected(t *testing.T) {
	h := newTestHub(t, nil)
	p1 := newTestClient(t, h, RoleProducer)
	p2 := newTestClient(t, h, RoleProducer)

	h.Router().Handle(p1, []byte(`{"type":"extract_request"}`))

	expectType(t, p1, "error")
	expectNoFrame(t, p2)
}

// TestScheduleDataAckAndBroadcast verifies that a stored submission is
// acknowledged to the producer and announced to every observer.
func TestScheduleDataAckAndBroadcast(t *testing.T) {
	st := store.NewMemory(0, zerolog.Nop())
	h := newTestHub(t, st)
	p := newTestClient(t, h, RoleProducer)
	otherProducer := newTestClient(t, h, RoleProducer)
	o1 := newTestClient(t, h, RoleObserver)
	o2 := newTestClient(t, h, RoleObserver)

	h.Router().Handle(p, []byte(scheduleFrame))

	ack := expectType(t, p, "schedule_saved")
	if ack["fecha"] != "2026-01-27" || ack["totalClases"] != float64(2) {
		t.Errorf("unexpected ack %v", ack)
	}
	for _, o := range []*Client{o1, o2} {
		m := expectType(t, o, "schedule_updated")
		if m["fecha"] != "2026-01-27" || m["totalClases"] != float64(2) {
			t.Errorf("unexpected update %v", m)
		}
		data, _ := m["data"].(map[string]any)
		if data["id"] != ack["id"] || data["sourceId"] != p.ID() {
			t.Errorf("update data does not describe the stored extraction: %v", data)
		}
	}
	expectNoFrame(t, otherProducer)

	classes, err := st.ClassesByDate(context.Background(), "2026-01-27")
	if err != nil || len(classes) != 2 {
		t.Fatalf("expected 2 stored classes, got %v (%v)", classes, err)
	}
}

func TestScheduleDataOverwriteScenario(t *testing.T) {
	st := store.NewMemory(0, zerolog.Nop())
	h := newTestHub(t, st)
	p := newTestClient(t, h, RoleProducer)

	h.Router().Handle(p, []byte(scheduleFrame))
	expectType(t, p, "schedule_saved")

	h.Router().Handle(p, []byte(`{"type":"schedule_data","data":{"fecha":"2026-01-27","clases":[{"nombre":"C"}],"totalClases":1}}`))
	expectType(t, p, "schedule_saved")

	classes, _ := st.ClassesByDate(context.Background(), "2026-01-27")
	if len(classes) != 1 || classes[0].Name != "C" {
		t.Fatalf("expected only class C after overwrite, got %+v", classes)
	}
}

func TestDeclaredTotalClasesKept(t *testing.T) {
	h := newTestHub(t, nil)
	p := newTestClient(t, h, RoleProducer)

	h.Router().Handle(p, []byte(`{"type":"schedule_data","data":{"fecha":"2026-01-28","clases":[],"totalClases":7}}`))

	ack := expectType(t, p, "schedule_saved")
	if ack["totalClases"] != float64(7) {
		t.Errorf("expected declared totalClases 7, got %v", ack["totalClases"])
	}
}

func TestScheduleDataStorageErrorSuppressesBroadcast(t *testing.T) {
	h := newTestHub(t, failingStore{})
	p := newTestClient(t, h, RoleProducer)
	o := newTestClient(t, h, RoleObserver)

	h.Router().Handle(p, []byte(scheduleFrame))

	m := expectType(t, p, "error")
	if msg, _ := m["message"].(string); !strings.Contains(msg, "2026-01-27") {
		t.Errorf("error should name the date, got %q", msg)
	}
	expectNoFrame(t, o)
}

func TestScheduleDataValidation(t *testing.T) {
	h := newTestHub(t, nil)
	p := newTestClient(t, h, RoleProducer)
	o := newTestClient(t, h, RoleObserver)

	h.Router().Handle(p, []byte(`{"type":"schedule_data","data":{"fecha":"27-01-2026","clases":[]}}`))
	expectType(t, p, "error")

	h.Router().Handle(o, []byte(scheduleFrame))
	expectType(t, o, "error")

	expectNoFrame(t, o)
	expectNoFrame(t, p)
}

func TestRegisterRoleReclassifies(t *testing.T) {
	h := newTestHub(t, nil)
	c := newTestClient(t, h, RoleUnclassified)
	p := newTestClient(t, h, RoleProducer)

	h.Router().Handle(c, []byte(`{"type":"register_role","role":"dashboard"}`))
	m := expectType(t, c, "connected")
	if m["clientType"] != "dashboard" || m["clientId"] != c.ID() {
		t.Errorf("unexpected connected frame %v", m)
	}

	h.Router().Handle(c, []byte(`{"type":"extract_request"}`))
	expectType(t, p, "extract_request")

	h.Router().Handle(c, []byte(`{"type":"register_role","role":"extension"}`))
	expectType(t, c, "connected")
	if len(h.Registry().ByRole(RoleObserver)) != 0 {
		t.Error("client should have left the observer set")
	}

	h.Router().Handle(c, []byte(`{"type":"register_role","role":"admin"}`))
	expectType(t, c, "error")
}

func TestUnknownAndMalformedMessages(t *testing.T) {
	h := newTestHub(t, nil)
	c := newTestClient(t, h, RoleObserver)

	h.Router().Handle(c, []byte(`{"type":"chat","content":"hola"}`))
	m := expectType(t, c, "error")
	if msg, _ := m["message"].(string); !strings.Contains(msg, "chat") {
		t.Errorf("error should name the type, got %q", msg)
	}

	for _, frame := range []string{`not json`, `{}`, `{"type":"schedule_data","data":3}`} {
		h.Router().Handle(c, []byte(frame))
	}
	expectNoFrame(t, c)

	h.Router().Handle(c, []byte(`{"type":"ping"}`))
	expectType(t, c, "pong")
}

func TestHandlerPanicIsContained(t *testing.T) {
	h := newTestHub(t, panickingStore{})
	p := newTestClient(t, h, RoleProducer)

	h.Router().Handle(p, []byte(scheduleFrame))
	expectNoFrame(t, p)

	h.Router().Handle(p, []byte(`{"type":"ping"}`))
	expectType(t, p, "pong")
}

// TestDisconnectedObserverGetsNothing verifies that a client removed from
// the registry is skipped by every later broadcast.
func TestDisconnectedObserverGetsNothing(t *testing.T) {
	h := newTestHub(t, nil)
	p := newTestClient(t, h, RoleProducer)
	o1 := newTestClient(t, h, RoleObserver)
	o2 := newTestClient(t, h, RoleObserver)
	o3 := newTestClient(t, h, RoleObserver)

	h.disconnect(o3)
	if o3.IsOpen() {
		t.Fatal("disconnected client should be closed")
	}

	h.Router().Handle(p, []byte(scheduleFrame))
	expectType(t, p, "schedule_saved")
	expectType(t, o1, "schedule_updated")
	expectType(t, o2, "schedule_updated")
	expectNoFrame(t, o3)

	if n := len(h.Registry().ByRole(RoleObserver)); n != 2 {
		t.Errorf("expected 2 observers, got %d", n)
	}
}

func TestBroadcastSkipsClosedAndFullClients(t *testing.T) {
	h := newTestHub(t, nil)
	open := newTestClient(t, h, RoleObserver)
	closed := newTestClient(t, h, RoleObserver)
	closed.close()

	full := NewClient(nil, nil, "full")
	full.send = make(chan []byte, 1)
	h.Registry().Register(full, RoleObserver)
	full.Send([]byte(`{}`))

	if n := h.Router().Broadcast(RoleObserver, protocol.Pong{}); n != 1 {
		t.Errorf("expected delivery to 1 client, got %d", n)
	}
	expectType(t, open, "pong")
	if len(h.Registry().ByRole(RoleObserver)) != 3 {
		t.Error("broadcast must not remove clients from the registry")
	}
}

func TestRequestExtractionCountsProducers(t *testing.T) {
	h := newTestHub(t, nil)
	newTestClient(t, h, RoleProducer)
	newTestClient(t, h, RoleProducer)

	id, n := h.Router().RequestExtraction("")
	if id == "" || n != 2 {
		t.Errorf("RequestExtraction = %q, %d", id, n)
	}
}

// TestGreetingPrecedesBroadcasts admits observers while broadcasts are in
// flight; each one must see connected before anything else.
func TestGreetingPrecedesBroadcasts(t *testing.T) {
	h := newTestHub(t, nil)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.Router().Broadcast(RoleObserver, protocol.Pong{})
			}
		}
	}()

	clients := make([]*Client, 0, 50)
	for i := 0; i < 50; i++ {
		c := NewClient(nil, h, "test")
		h.admit(c, RoleObserver)
		clients = append(clients, c)
	}
	close(stop)
	wg.Wait()

	for _, c := range clients {
		m := expectType(t, c, "connected")
		if m["clientType"] != "dashboard" {
			t.Errorf("unexpected greeting %v", m)
		}
	}
}
