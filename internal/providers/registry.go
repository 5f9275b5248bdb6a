package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alex-user-go/hutavail/internal/config"
)

// Factory builds the Source for one hut of a booking system.
type Factory func(bookingID string, cfg config.Provider) (Source, error)

type sourceKey struct {
	bookingType string
	bookingID   string
}

// Registry selects the Source implementation for a hut by booking type.
// It keeps one Source per hut so rate limiter state survives across calls.
type Registry struct {
	mu        sync.Mutex
	configs   map[string]config.Provider
	factories map[string]Factory
	sources   map[sourceKey]Source
}

// NewRegistry creates a Registry using the per booking type configuration.
func NewRegistry(configs map[string]config.Provider) *Registry {
	return &Registry{
		configs:   configs,
		factories: make(map[string]Factory),
		sources:   make(map[sourceKey]Source),
	}
}

// Register binds a booking type to a factory, replacing any earlier one.
func (r *Registry) Register(bookingType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[bookingType] = f
}

// Types returns the registered booking types in sorted order.
func (r *Registry) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Config returns the configuration of a registered booking type.
func (r *Registry) Config(bookingType string) (config.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[bookingType]; !ok {
		return config.Provider{}, fmt.Errorf("%q: %w", bookingType, ErrUnknownBookingType)
	}
	cfg, ok := r.configs[bookingType]
	if !ok {
		return config.Provider{}, fmt.Errorf("no configuration for booking type %q", bookingType)
	}
	return cfg, nil
}

// Source returns the Source for a hut, creating it on first use.
func (r *Registry) Source(bookingType, bookingID string) (Source, error) {
	cfg, err := r.Config(bookingType)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := sourceKey{bookingType: bookingType, bookingID: bookingID}
	if s, ok := r.sources[key]; ok {
		return s, nil
	}

	s, err := r.factories[bookingType](bookingID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s source %q: %w", bookingType, bookingID, err)
	}
	r.sources[key] = s
	return s, nil
}
