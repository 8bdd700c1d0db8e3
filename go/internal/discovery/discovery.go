// Package discovery maps a session identity to the address its master
// listens on, so a slave operator only has to type the identity.
package discovery

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNotFound is returned when no master is registered for an identity.
var ErrNotFound = errors.New("session not found")

// Resolver looks up the address registered for a session identity.
type Resolver interface {
	Resolve(ctx context.Context, sessionID string) (string, error)
}

// Registration is a live advertisement that can be withdrawn.
type Registration interface {
	Withdraw(ctx context.Context) error
}

// Registry both advertises and resolves addresses.
type Registry interface {
	Resolver
	Register(ctx context.Context, sessionID, address string) (Registration, error)
}

func canonical(sessionID string) string {
	return strings.ToUpper(strings.TrimSpace(sessionID))
}

// StaticRegistry resolves from a fixed table plus in-process registrations.
type StaticRegistry struct {
	mu    sync.RWMutex
	peers map[string]string
}

// NewStaticRegistry creates a registry seeded with peers (identity -> address).
func NewStaticRegistry(peers map[string]string) *StaticRegistry {
	r := &StaticRegistry{peers: make(map[string]string, len(peers))}
	for id, addr := range peers {
		r.peers[canonical(id)] = addr
	}
	return r
}

func (r *StaticRegistry) Resolve(_ context.Context, sessionID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.peers[canonical(sessionID)]
	if !ok {
		return "", ErrNotFound
	}
	return addr, nil
}

func (r *StaticRegistry) Register(_ context.Context, sessionID, address string) (Registration, error) {
	id := canonical(sessionID)
	r.mu.Lock()
	r.peers[id] = address
	r.mu.Unlock()
	return staticRegistration{registry: r, id: id, address: address}, nil
}

type staticRegistration struct {
	registry *StaticRegistry
	id       string
	address  string
}

func (s staticRegistration) Withdraw(context.Context) error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if s.registry.peers[s.id] == s.address {
		delete(s.registry.peers, s.id)
	}
	return nil
}
