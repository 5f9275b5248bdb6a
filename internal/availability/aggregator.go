package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alex-user-go/hutavail/internal/availability/types"
	"github.com/alex-user-go/hutavail/internal/availability/window"
	"github.com/alex-user-go/hutavail/internal/obs"
	"github.com/alex-user-go/hutavail/internal/providers"
)

// Aggregator computes per-date availability for one hut from its Source.
//
// Calls to the source are strictly sequential within GetAvailability; the
// source's own limiters decide how fast they go.
type Aggregator struct {
	hut       string
	source    providers.Source
	maxGuests int
	metrics   *obs.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	catalog map[types.RoomID]int
}

// NewAggregator creates a new Aggregator probing guest counts 1..maxGuests.
func NewAggregator(hut string, source providers.Source, maxGuests int, metrics *obs.Metrics, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		hut:       hut,
		source:    source,
		maxGuests: maxGuests,
		metrics:   metrics,
		logger:    logger.With("hut", hut, "provider", source.Name()),
	}
}

// GetAvailability returns one Result per date in [start, end].
//
// Coarse probes always run. Dates found in cache are returned as cached and get no
// detailed queries; every other date is computed and written to cache. cache may be nil.
// Errors are contract violations from the source or context cancellation.
func (a *Aggregator) GetAvailability(ctx context.Context, start, end types.Date, cache types.Cache) (map[types.Date]types.Result, error) {
	began := time.Now()
	out, err := a.getAvailability(ctx, start, end, cache)
	a.metrics.ObserveAggregation(a.hut, time.Since(began), err)
	return out, err
}

func (a *Aggregator) getAvailability(ctx context.Context, start, end types.Date, cache types.Cache) (map[types.Date]types.Result, error) {
	windows, err := window.Split(start, end, a.source.MaxWindowDays())
	if err != nil {
		return nil, err
	}

	candidates, err := a.candidates(ctx, windows)
	if err != nil {
		return nil, err
	}

	var catalog map[types.RoomID]int
	out := make(map[types.Date]types.Result, start.DaysUntil(end)+1)
	for _, d := range types.DateRange(start, end) {
		if cache != nil {
			if cached, ok := cache.Get(d); ok {
				a.metrics.IncCacheHits(a.hut)
				out[d] = cached
				continue
			}
		}

		lenses := candidates[d]
		if len(lenses) > 0 && catalog == nil {
			catalog = a.roomCatalog(ctx)
		}

		result, err := a.detailed(ctx, d, lenses, catalog)
		if err != nil {
			return nil, err
		}

		out[d] = result
		if cache != nil {
			cache.Put(d, result)
		}
	}

	a.logger.Debug("availability aggregated",
		"start", start.String(),
		"end", end.String(),
		"candidate_dates", len(candidates),
	)

	return out, nil
}

// candidates runs the coarse probe for every guest count over every window and
// returns, per date, the ascending guest counts worth a detailed query.
func (a *Aggregator) candidates(ctx context.Context, windows []window.Window) (map[types.Date][]int, error) {
	candidates := make(map[types.Date][]int)
	for guests := 1; guests <= a.maxGuests; guests++ {
		for _, w := range windows {
			dates, err := a.source.CoarseAvailability(ctx, w, guests)
			if err != nil {
				return nil, fmt.Errorf("coarse availability for %d guests: %w", guests, err)
			}
			for _, d := range dates {
				lenses := candidates[d]
				if n := len(lenses); n > 0 && lenses[n-1] == guests {
					continue
				}
				candidates[d] = append(lenses, guests)
			}
		}
	}
	return candidates, nil
}

// detailed queries every candidate guest count for d and folds the answers into a Result.
func (a *Aggregator) detailed(ctx context.Context, d types.Date, lenses []int, catalog map[types.RoomID]int) (types.Result, error) {
	merged := make(map[types.RoomID]int)
	for _, guests := range lenses {
		rooms, err := a.source.DetailedAvailability(ctx, d, guests)
		if err != nil {
			return types.Result{}, fmt.Errorf("detailed availability for %s, %d guests: %w", d, guests, err)
		}
		a.metrics.IncDetailedQueries(a.hut, guests)

		if conflicts := MergeRooms(merged, rooms); len(conflicts) > 0 {
			a.metrics.AddLensConflicts(a.hut, len(conflicts))
			a.logger.Warn("guest-count lenses disagree, keeping latest",
				"date", d.String(),
				"guests", guests,
				"rooms", conflicts,
			)
		}
	}

	rooms, orphans := ToRoomAvailability(merged, catalog)
	if len(orphans) > 0 {
		a.metrics.AddOrphanRooms(a.hut, len(orphans))
		a.logger.Debug("dropping rooms missing from catalog", "date", d.String(), "rooms", orphans)
	}

	return types.NewResult(rooms), nil
}

// roomCatalog returns the cached catalog, fetching it if no non-empty catalog was seen yet.
func (a *Aggregator) roomCatalog(ctx context.Context) map[types.RoomID]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.catalog) > 0 {
		return a.catalog
	}

	catalog := a.source.RoomCatalog(ctx)
	if len(catalog) == 0 {
		a.logger.Warn("room catalog is empty, every room will be dropped")
		return map[types.RoomID]int{}
	}
	a.catalog = catalog
	return catalog
}

// MergeRooms copies src into dst. A room present in both takes the value from src.
// It returns, sorted, the rooms whose previous value in dst differed.
func MergeRooms(dst, src map[types.RoomID]int) []types.RoomID {
	var conflicts []types.RoomID
	for id, count := range src {
		if prev, ok := dst[id]; ok && prev != count {
			conflicts = append(conflicts, id)
		}
		dst[id] = count
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i] < conflicts[j] })
	return conflicts
}

// ToRoomAvailability re-keys per-room counts by room size using catalog.
// Counts of different rooms with the same size add up. Rooms missing from the
// catalog, or with a non-positive size, are dropped and returned sorted; rooms
// with nothing free are left out.
func ToRoomAvailability(rooms map[types.RoomID]int, catalog map[types.RoomID]int) (types.RoomAvailability, []types.RoomID) {
	out := make(types.RoomAvailability)
	var orphans []types.RoomID
	for id, count := range rooms {
		size, ok := catalog[id]
		if !ok || size < 1 {
			orphans = append(orphans, id)
			continue
		}
		if count <= 0 {
			continue
		}
		out[size] += count
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })
	return out, orphans
}
