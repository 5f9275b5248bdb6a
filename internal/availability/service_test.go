package availability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alex-user-go/hutavail/internal/availability"
	"github.com/alex-user-go/hutavail/internal/availability/cache"
	"github.com/alex-user-go/hutavail/internal/availability/types"
	"github.com/alex-user-go/hutavail/internal/config"
	"github.com/alex-user-go/hutavail/internal/logging"
	"github.com/alex-user-go/hutavail/internal/obs"
	"github.com/alex-user-go/hutavail/internal/providers"
	"github.com/alex-user-go/hutavail/internal/roster"
)

func newService(t *testing.T, c *cache.Cache) (*availability.Service, map[string]*fakeSource) {
	t.Helper()

	r, err := roster.New([]roster.Hut{
		{Name: "Rifugio Fanes", BookingType: "fake", BookingID: "1"},
		{Name: "Schlernhaus", BookingType: "fake", BookingID: "2"},
		{Name: "Staulanza", BookingType: "unregistered", BookingID: "x"},
	})
	require.NoError(t, err)

	sources := map[string]*fakeSource{
		"1": {
			maxWindow: 60,
			catalog:   map[types.RoomID]int{"A": 2},
			coarse:    map[int][]types.Date{2: {day(1)}},
			detailed: map[detailedCall]map[types.RoomID]int{
				{day(1), 2}: {"A": 3},
			},
		},
		"2": {maxWindow: 60},
	}

	registry := providers.NewRegistry(map[string]config.Provider{
		"fake": {MaxGuests: 2, MaxWindowDays: 60},
	})
	registry.Register("fake", func(bookingID string, cfg config.Provider) (providers.Source, error) {
		return sources[bookingID], nil
	})

	return availability.NewService(r, registry, c, obs.NewMetrics(nil), logging.Discard()), sources
}

func TestService_Availability(t *testing.T) {
	c := cache.NewCache(0)
	defer c.Close()
	svc, sources := newService(t, c)

	got, err := svc.Availability(context.Background(), "rifugio-fanes", day(1), day(2))
	require.NoError(t, err)

	assert.Equal(t, "Rifugio Fanes", got.Hut.Name)
	assert.Equal(t, 6, got.Dates[day(1)].NumAvailable)
	assert.Equal(t, 0, got.Dates[day(2)].NumAvailable)
	assert.Equal(t, 2, c.Len("rifugio-fanes"))

	// Cached dates need no detailed queries on the next request.
	sources["1"].detailedCalls = nil
	_, err = svc.Availability(context.Background(), "rifugio-fanes", day(1), day(2))
	require.NoError(t, err)
	assert.Empty(t, sources["1"].detailedCalls)
	assert.Equal(t, 0, c.Len("schlernhaus"))
}

func TestService_AggregatorIsReused(t *testing.T) {
	svc, _ := newService(t, nil)

	a1, hut, err := svc.Aggregator("schlernhaus")
	require.NoError(t, err)
	a2, _, err := svc.Aggregator("schlernhaus")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.Equal(t, "2", hut.BookingID)
}

func TestService_Errors(t *testing.T) {
	svc, _ := newService(t, nil)

	_, err := svc.Availability(context.Background(), "nowhere", day(1), day(2))
	assert.ErrorIs(t, err, availability.ErrUnknownHut)

	_, err = svc.Availability(context.Background(), "staulanza", day(1), day(2))
	assert.ErrorIs(t, err, providers.ErrUnknownBookingType)
}

func TestService_WithoutCache(t *testing.T) {
	svc, sources := newService(t, nil)

	for i := 0; i < 2; i++ {
		got, err := svc.Availability(context.Background(), "rifugio-fanes", day(1), day(1))
		require.NoError(t, err)
		assert.Equal(t, 6, got.Dates[day(1)].NumAvailable)
	}
	assert.Len(t, sources["1"].detailedCalls, 2)
	assert.Len(t, svc.Huts(), 3)
}
