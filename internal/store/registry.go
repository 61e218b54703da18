package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownSource is returned by SetActive and GetActive when the named
// backend was never registered.
var ErrUnknownSource = errors.New("store: unknown source")

// Registry holds every configured Store backend by name and tracks
// which one is active, per spec.md §4.4's Data Source Registry: callers
// always go through GetActive rather than holding a Store reference
// directly, so SetActive can swap backends out from under them between
// calls.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]Store
	active string
}

// NewRegistry returns an empty registry. Register each backend, then
// call SetActive before the first GetActive.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]Store)}
}

// Register adds or replaces a named backend. It does not connect it;
// call ConnectAll (or Connect on the Store directly) separately.
func (r *Registry) Register(name string, s Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[name] = s
}

// SetActive switches the active backend by name.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	r.active = name
	return nil
}

// ActiveName reports the currently active backend's name, or "" if
// none has been set.
func (r *Registry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// GetActive returns the active Store. It fails fast rather than
// returning a nil Store if no backend has been set active yet.
func (r *Registry) GetActive() (Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return nil, fmt.Errorf("%w: no active source set", ErrUnknownSource)
	}
	s, ok := r.stores[r.active]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, r.active)
	}
	return s, nil
}

// Get returns a specific registered backend by name, for callers (the
// Transfer Manager) that need both source and destination stores
// simultaneously rather than only the active one.
func (r *Registry) Get(name string) (Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return s, nil
}

// AvailableSources lists every registered backend name.
func (r *Registry) AvailableSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.stores))
	for name := range r.stores {
		out = append(out, name)
	}
	return out
}

// ConnectAll connects every registered backend, stopping at the first
// error.
func (r *Registry) ConnectAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, s := range r.stores {
		if err := s.Connect(ctx); err != nil {
			return fmt.Errorf("store: connect %s: %w", name, err)
		}
	}
	return nil
}

// DisconnectAll disconnects every registered backend, collecting every
// error rather than stopping at the first so shutdown always releases
// every connection it can.
func (r *Registry) DisconnectAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for name, s := range r.stores {
		if err := s.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("store: disconnect all: %v", errs)
	}
	return nil
}
