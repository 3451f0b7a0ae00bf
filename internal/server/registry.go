// Package server keeps every live connection in a Registry that records each
// connection's role as an explicit state transition.
package server

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/timp-relay/internal/idgen"
)

// ErrUnknownClient is returned when an identity is not registered.
var ErrUnknownClient = errors.New("unknown client")

// RoleCounts reports how many live connections hold each role.
type RoleCounts struct {
	Producers    int `json:"extensiones_conectadas"`
	Observers    int `json:"dashboards_conectados"`
	Unclassified int `json:"sin_clasificar"`
}

// Registry owns the live connections, keyed by identity, in disjoint role
// sets. A connection is in at most one set at any instant.
type Registry struct {
	mu    sync.RWMutex
	sets  map[Role]map[string]*Client
	roles map[string]Role
	newID idgen.Generator
	log   zerolog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		sets: map[Role]map[string]*Client{
			RoleUnclassified: {},
			RoleProducer:     {},
			RoleObserver:     {},
		},
		roles: make(map[string]Role),
		newID: idgen.Default,
		log:   log.With().Str("component", "registry").Logger(),
	}
}

// Register assigns client a fresh identity and places it in the set named
// by hint, or in the unclassified set when hint is not a known role.
func (r *Registry) Register(client *Client, hint Role) string {
	return r.admit(client, hint, nil)
}

// admit is Register with a greet hook that runs while the registry lock is
// held, so no broadcast can reach the client before the greeting is queued.
func (r *Registry) admit(client *Client, hint Role, greet func(id string, role Role)) string {
	if !hint.valid() {
		hint = RoleUnclassified
	}
	id := r.newID()

	r.mu.Lock()
	client.id = id
	if greet != nil {
		greet(id, hint)
	}
	r.sets[hint][id] = client
	r.roles[id] = hint
	total := len(r.roles)
	r.mu.Unlock()

	r.log.Info().Str("client_id", id).Str("role", string(hint)).Str("addr", client.Addr()).
		Int("total", total).Msg("client registered")
	return id
}

// Reclassify moves a connection to role, removing it from its previous
// set. It returns the previous role.
func (r *Registry) Reclassify(id string, role Role) (Role, error) {
	if !role.valid() {
		return "", errors.New("invalid role " + string(role))
	}

	r.mu.Lock()
	prev, ok := r.roles[id]
	if !ok {
		r.mu.Unlock()
		return "", ErrUnknownClient
	}
	client := r.sets[prev][id]
	delete(r.sets[prev], id)
	r.sets[role][id] = client
	r.roles[id] = role
	r.mu.Unlock()

	if prev != role {
		r.log.Info().Str("client_id", id).Str("from", string(prev)).Str("to", string(role)).
			Msg("client reclassified")
	}
	return prev, nil
}

// Unregister removes a connection from every set. It reports whether the
// identity was registered; calling it again is a no-op.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	role, ok := r.roles[id]
	if ok {
		delete(r.sets[role], id)
		delete(r.roles, id)
	}
	total := len(r.roles)
	r.mu.Unlock()

	if ok {
		r.log.Info().Str("client_id", id).Str("role", string(role)).Int("total", total).
			Msg("client unregistered")
	}
	return ok
}

// ByRole returns a snapshot of the connections currently holding role.
// Callers skip connections that are no longer open; the registry is only
// changed through Unregister.
func (r *Registry) ByRole(role Role) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.sets[role]
	clients := make([]*Client, 0, len(set))
	for _, c := range set {
		clients = append(clients, c)
	}
	return clients
}

// RoleOf returns the current role of id.
func (r *Registry) RoleOf(id string) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[id]
	return role, ok
}

// All returns a snapshot of every registered connection.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.roles))
	for _, set := range r.sets {
		for _, c := range set {
			clients = append(clients, c)
		}
	}
	return clients
}

// Counts reports the size of each role set.
func (r *Registry) Counts() RoleCounts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RoleCounts{
		Producers:    len(r.sets[RoleProducer]),
		Observers:    len(r.sets[RoleObserver]),
		Unclassified: len(r.sets[RoleUnclassified]),
	}
}
