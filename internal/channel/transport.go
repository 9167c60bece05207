package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoTransport is returned when no transport is registered for a kind.
var ErrNoTransport = errors.New("no transport registered for channel kind")

// Transport sends outbound messages through one channel's provider API.
type Transport interface {
	Kind() Kind
	Send(ctx context.Context, msg OutboundMessage) (SendResult, error)
}

// Registry holds the registered transports, one per channel kind. It must be
// created via NewRegistry and passed explicitly to components that need it.
type Registry struct {
	mu         sync.RWMutex
	transports map[Kind]Transport
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		transports: map[Kind]Transport{},
	}
}

// Register adds a transport to the registry.
func (r *Registry) Register(t Transport) error {
	if t == nil {
		return fmt.Errorf("transport is nil")
	}
	kind, ok := ParseKind(t.Kind().String())
	if !ok {
		return fmt.Errorf("unknown channel kind: %s", t.Kind())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transports[kind]; exists {
		return fmt.Errorf("transport already registered: %s", kind)
	}
	r.transports[kind] = t
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(t Transport) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the transport for the given channel kind.
func (r *Registry) Get(kind Kind) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[kind]
	return t, ok
}

// Send dispatches an outbound message through the registered transport.
func (r *Registry) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	t, ok := r.Get(msg.Kind)
	if !ok {
		return SendResult{}, fmt.Errorf("%w: %s", ErrNoTransport, msg.Kind)
	}
	return t.Send(ctx, msg)
}
