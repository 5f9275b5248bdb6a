package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alex-user-go/hutavail/internal/availability/cache"
	"github.com/alex-user-go/hutavail/internal/availability/types"
	"github.com/alex-user-go/hutavail/internal/obs"
	"github.com/alex-user-go/hutavail/internal/providers"
	"github.com/alex-user-go/hutavail/internal/roster"
)

// ErrUnknownHut is returned for a slug that is not in the roster.
var ErrUnknownHut = errors.New("unknown hut")

// HutAvailability is the answer for one hut and date range.
type HutAvailability struct {
	Hut   roster.Hut
	Dates map[types.Date]types.Result
	// Shared is set when the result came from a concurrent identical request.
	Shared bool
}

// Service answers availability queries for every hut of a roster.
type Service struct {
	roster   *roster.Roster
	registry *providers.Registry
	cache    *cache.Cache
	metrics  *obs.Metrics
	logger   *slog.Logger

	mu          sync.Mutex
	aggregators map[string]*Aggregator
}

// NewService creates a new Service. c may be nil to disable caching.
func NewService(r *roster.Roster, registry *providers.Registry, c *cache.Cache, metrics *obs.Metrics, logger *slog.Logger) *Service {
	return &Service{
		roster:      r,
		registry:    registry,
		cache:       c,
		metrics:     metrics,
		logger:      logger,
		aggregators: make(map[string]*Aggregator),
	}
}

// Huts returns the roster in order.
func (s *Service) Huts() []roster.Hut {
	return s.roster.Huts()
}

// Aggregator returns the Aggregator of a hut, creating it on first use.
func (s *Service) Aggregator(slug string) (*Aggregator, roster.Hut, error) {
	hut, ok := s.roster.Get(slug)
	if !ok {
		return nil, roster.Hut{}, fmt.Errorf("%q: %w", slug, ErrUnknownHut)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if agg, ok := s.aggregators[slug]; ok {
		return agg, hut, nil
	}

	cfg, err := s.registry.Config(hut.BookingType)
	if err != nil {
		return nil, hut, err
	}
	source, err := s.registry.Source(hut.BookingType, hut.BookingID)
	if err != nil {
		return nil, hut, err
	}

	agg := NewAggregator(hut.Slug, source, cfg.MaxGuests, s.metrics, s.logger)
	s.aggregators[slug] = agg
	return agg, hut, nil
}

// Availability returns one Result per date in [start, end] for the hut with the given slug.
// Concurrent requests for the same hut and range share one aggregation, which runs
// under the context of the first caller.
func (s *Service) Availability(ctx context.Context, slug string, start, end types.Date) (HutAvailability, error) {
	agg, hut, err := s.Aggregator(slug)
	if err != nil {
		return HutAvailability{}, err
	}

	if s.cache == nil {
		dates, err := agg.GetAvailability(ctx, start, end, nil)
		if err != nil {
			return HutAvailability{}, err
		}
		return HutAvailability{Hut: hut, Dates: dates}, nil
	}

	view := s.cache.For(hut.Slug)
	dates, shared, err := s.cache.Collapse(ctx, cache.Key(hut.Slug, start, end), func() (map[types.Date]types.Result, error) {
		return agg.GetAvailability(ctx, start, end, view)
	})
	if err != nil {
		return HutAvailability{}, err
	}

	s.logger.Debug("availability served",
		"hut", hut.Slug,
		"start", start.String(),
		"end", end.String(),
		"shared", shared,
	)

	return HutAvailability{Hut: hut, Dates: dates, Shared: shared}, nil
}
