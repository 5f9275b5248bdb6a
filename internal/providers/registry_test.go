package providers_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alex-user-go/hutavail/internal/availability/types"
	"github.com/alex-user-go/hutavail/internal/availability/window"
	"github.com/alex-user-go/hutavail/internal/config"
	"github.com/alex-user-go/hutavail/internal/providers"
)

type stubSource struct {
	id  string
	cfg config.Provider
}

func (s *stubSource) Name() string       { return "stub" }
func (s *stubSource) MaxWindowDays() int { return s.cfg.MaxWindowDays }
func (s *stubSource) RoomCatalog(ctx context.Context) map[types.RoomID]int {
	return map[types.RoomID]int{}
}
func (s *stubSource) CoarseAvailability(ctx context.Context, w window.Window, guests int) ([]types.Date, error) {
	return nil, nil
}
func (s *stubSource) DetailedAvailability(ctx context.Context, d types.Date, guests int) (map[types.RoomID]int, error) {
	return map[types.RoomID]int{}, nil
}

func TestRegistry(t *testing.T) {
	reg := providers.NewRegistry(map[string]config.Provider{
		"stub":     {MaxWindowDays: 7},
		"orphaned": {MaxWindowDays: 1},
	})

	built := 0
	reg.Register("stub", func(bookingID string, cfg config.Provider) (providers.Source, error) {
		built++
		return &stubSource{id: bookingID, cfg: cfg}, nil
	})
	reg.Register("noconfig", func(bookingID string, cfg config.Provider) (providers.Source, error) {
		return &stubSource{id: bookingID}, nil
	})
	reg.Register("broken", func(bookingID string, cfg config.Provider) (providers.Source, error) {
		return nil, errors.New("nope")
	})

	assert.Equal(t, []string{"broken", "noconfig", "stub"}, reg.Types())

	a, err := reg.Source("stub", "1")
	require.NoError(t, err)
	assert.Equal(t, 7, a.MaxWindowDays())

	again, err := reg.Source("stub", "1")
	require.NoError(t, err)
	assert.Same(t, a, again, "one source per hut")

	other, err := reg.Source("stub", "2")
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, built)

	_, err = reg.Source("orphaned", "1")
	assert.ErrorIs(t, err, providers.ErrUnknownBookingType, "config alone does not register a type")

	_, err = reg.Source("noconfig", "1")
	assert.Error(t, err)

	_, err = reg.Source("broken", "1")
	assert.Error(t, err)
}

func TestCheckQuery(t *testing.T) {
	start := types.NewDate(2024, 1, 1)

	tests := []struct {
		name    string
		w       window.Window
		guests  int
		maxDays int
		wantErr error
	}{
		{name: "fits", w: window.Window{Start: start, End: start.AddDays(6)}, guests: 1, maxDays: 7},
		{name: "too wide", w: window.Window{Start: start, End: start.AddDays(7)}, guests: 1, maxDays: 7, wantErr: providers.ErrWindowTooLarge},
		{name: "no guests", w: window.Window{Start: start, End: start}, guests: 0, maxDays: 7, wantErr: providers.ErrInvalidGuests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := providers.CheckQuery("stub", tt.w, tt.guests, tt.maxDays)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
