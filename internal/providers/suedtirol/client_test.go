package suedtirol_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alex-user-go/hutavail/internal/availability/ratelimit"
	"github.com/alex-user-go/hutavail/internal/availability/types"
	"github.com/alex-user-go/hutavail/internal/availability/window"
	"github.com/alex-user-go/hutavail/internal/config"
	"github.com/alex-user-go/hutavail/internal/logging"
	"github.com/alex-user-go/hutavail/internal/obs"
	"github.com/alex-user-go/hutavail/internal/providers"
	"github.com/alex-user-go/hutavail/internal/providers/suedtirol"
	"github.com/alex-user-go/hutavail/internal/providers/suedtirol/suedtiroltest"
)

func day(n int) types.Date {
	return types.NewDate(2024, time.August, n)
}

func providerConfig(baseURL string) config.Provider {
	return config.Provider{
		BaseURL:       baseURL,
		Timeout:       2 * time.Second,
		MaxGuests:     4,
		MaxWindowDays: 10,
	}
}

func newClient(t *testing.T, baseURL string, metrics *obs.Metrics) *suedtirol.Client {
	t.Helper()
	return suedtirol.NewClient("10394", providerConfig(baseURL), metrics, logging.Discard(),
		suedtirol.WithLimiters(ratelimit.New(0, 0), ratelimit.New(0, 0)),
	)
}

func newFake(t *testing.T, opts ...suedtiroltest.Option) (*suedtiroltest.Server, *httptest.Server) {
	t.Helper()
	fake := suedtiroltest.NewServer(append([]suedtiroltest.Option{suedtiroltest.WithSeed(1)}, opts...)...)
	fake.AddProperty("10394",
		suedtiroltest.Room{ID: "11", Occupancy: 2, Free: map[types.Date]int{day(1): 3, day(3): 1}},
		suedtiroltest.Room{ID: "dorm", Occupancy: 6, Free: map[types.Date]int{day(3): 1, day(20): 2}},
	)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, srv
}

func TestClient_RoomCatalog(t *testing.T) {
	_, srv := newFake(t)
	c := newClient(t, srv.URL, nil)

	assert.Equal(t, map[types.RoomID]int{"11": 2, "dorm": 6}, c.RoomCatalog(context.Background()))
	assert.Equal(t, suedtirol.BookingType, c.Name())
	assert.Equal(t, 10, c.MaxWindowDays())
}

func TestClient_CoarseAvailability(t *testing.T) {
	_, srv := newFake(t)
	c := newClient(t, srv.URL, nil)

	tests := []struct {
		name   string
		window window.Window
		guests int
		want   []types.Date
	}{
		{name: "one guest", window: window.Window{Start: day(1), End: day(10)}, guests: 1, want: []types.Date{day(1), day(3)}},
		{name: "three guests need the dorm", window: window.Window{Start: day(1), End: day(10)}, guests: 3, want: []types.Date{day(3)}},
		{name: "nothing for seven", window: window.Window{Start: day(1), End: day(10)}, guests: 7, want: []types.Date{}},
		{name: "window bounds", window: window.Window{Start: day(2), End: day(2)}, guests: 1, want: []types.Date{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.CoarseAvailability(context.Background(), tt.window, tt.guests)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_CoarseAvailability_ContractErrors(t *testing.T) {
	_, srv := newFake(t)
	c := newClient(t, srv.URL, nil)

	_, err := c.CoarseAvailability(context.Background(), window.Window{Start: day(1), End: day(11)}, 1)
	assert.ErrorIs(t, err, providers.ErrWindowTooLarge)

	var rangeErr *providers.RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, 10, rangeErr.Max)

	_, err = c.CoarseAvailability(context.Background(), window.Window{Start: day(1), End: day(2)}, 0)
	assert.ErrorIs(t, err, providers.ErrInvalidGuests)

	_, err = c.DetailedAvailability(context.Background(), day(1), 0)
	assert.ErrorIs(t, err, providers.ErrInvalidGuests)
}

func TestClient_DetailedAvailability(t *testing.T) {
	_, srv := newFake(t)
	c := newClient(t, srv.URL, nil)

	got, err := c.DetailedAvailability(context.Background(), day(3), 2)
	require.NoError(t, err)
	assert.Equal(t, map[types.RoomID]int{"11": 1, "dorm": 1}, got)

	got, err = c.DetailedAvailability(context.Background(), day(3), 3)
	require.NoError(t, err)
	assert.Equal(t, map[types.RoomID]int{"dorm": 1}, got)
}

func TestClient_QueryParameters(t *testing.T) {
	var mu sync.Mutex
	var seen []*http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
		switch r.URL.Path {
		case "/properties/10394/offers":
			_ = json.NewEncoder(w).Encode(map[string]any{"rooms": []any{}})
		default:
			_ = json.NewEncoder(w).Encode([]any{})
		}
	}))
	defer srv.Close()
	c := newClient(t, srv.URL, nil)

	_, err := c.CoarseAvailability(context.Background(), window.Window{Start: day(1), End: day(5)}, 2)
	require.NoError(t, err)
	_, err = c.DetailedAvailability(context.Background(), day(31), 3)
	require.NoError(t, err)

	require.Len(t, seen, 2)

	coarse := seen[0].URL.Query()
	assert.Equal(t, "/properties/10394/availabilities", seen[0].URL.Path)
	assert.Equal(t, "2024-08-01", coarse.Get("from"))
	assert.Equal(t, "2024-08-05", coarse.Get("to"))
	assert.Equal(t, "2", coarse.Get("guestCount"))
	assert.Equal(t, "[[18,18]]", coarse.Get("guests"))
	assert.Equal(t, "en", coarse.Get("lang"))

	detailed := seen[1].URL.Query()
	assert.Equal(t, "2024-08-31", detailed.Get("from"))
	assert.Equal(t, "2024-09-01", detailed.Get("to"))
	assert.Equal(t, "[[18,18,18]]", detailed.Get("guests"))
}

func TestClient_FailSoft(t *testing.T) {
	tests := []struct {
		name string
		opt  suedtiroltest.Option
	}{
		{name: "upstream errors", opt: suedtiroltest.WithFailureRate(1)},
		{name: "malformed payloads", opt: suedtiroltest.WithMalformedRate(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newFake(t, tt.opt)
			metrics := obs.NewMetrics(nil)
			c := newClient(t, srv.URL, metrics)

			assert.Empty(t, c.RoomCatalog(context.Background()))

			rooms, err := c.DetailedAvailability(context.Background(), day(1), 1)
			require.NoError(t, err)
			assert.Empty(t, rooms)
			assert.NotNil(t, rooms)

			_, err = c.CoarseAvailability(context.Background(), window.Window{Start: day(1), End: day(5)}, 1)
			require.NoError(t, err)
		})
	}
}

func TestClient_MalformedDatesSkipped(t *testing.T) {
	_, srv := newFake(t, suedtiroltest.WithMalformedRate(1))
	c := newClient(t, srv.URL, nil)

	got, err := c.CoarseAvailability(context.Background(), window.Window{Start: day(1), End: day(10)}, 1)
	require.NoError(t, err)
	assert.Equal(t, []types.Date{day(1), day(3)}, got)
}

func TestClient_UpstreamMetrics(t *testing.T) {
	_, srv := newFake(t, suedtiroltest.WithFailureRate(1))
	metrics := obs.NewMetrics(nil)
	c := newClient(t, srv.URL, metrics)

	_, err := c.DetailedAvailability(context.Background(), day(1), 1)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(metrics.Registry(), "hutavail_upstream_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClient_ContextCancelled(t *testing.T) {
	_, srv := newFake(t, suedtiroltest.WithLatency(time.Second, time.Second))
	c := newClient(t, srv.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.CoarseAvailability(ctx, window.Window{Start: day(1), End: day(5)}, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = c.DetailedAvailability(ctx, day(1), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_SharedCoarseLimiter(t *testing.T) {
	fake, srv := newFake(t)
	clock := newStepClock()
	coarse := ratelimit.New(1, time.Minute, ratelimit.WithClock(clock))
	c := suedtirol.NewClient("10394", providerConfig(srv.URL), nil, logging.Discard(),
		suedtirol.WithLimiters(coarse, ratelimit.New(0, 0)),
	)

	c.RoomCatalog(context.Background())
	_, err := c.CoarseAvailability(context.Background(), window.Window{Start: day(1), End: day(2)}, 1)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Minute}, clock.sleeps, "catalog and coarse calls share one budget")
	assert.Equal(t, 1, fake.Calls("rooms"))
	assert.Equal(t, 1, fake.Calls("availabilities"))
}

func TestFactory(t *testing.T) {
	f := suedtirol.Factory(nil, logging.Discard())

	src, err := f("42", providerConfig("http://localhost:1"))
	require.NoError(t, err)
	assert.Equal(t, suedtirol.BookingType, src.Name())

	_, err = f("42", providerConfig("http://[::1"))
	assert.Error(t, err)
}

type stepClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}
