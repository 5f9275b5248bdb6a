package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/alex-user-go/hutavail/internal/availability/types"
	"github.com/alex-user-go/hutavail/internal/availability/window"
)

// Source is a booking system for one hut.
//
// Implementations absorb transport and parse failures: they log them and
// report no availability with a nil error. Errors are reserved for contract
// violations (see RangeError, ErrInvalidGuests) and context cancellation.
type Source interface {
	// Name identifies the booking system, for logs and metrics.
	Name() string

	// MaxWindowDays is the widest window CoarseAvailability accepts, in inclusive days.
	MaxWindowDays() int

	// RoomCatalog maps every room to its maximum occupancy. It is empty on failure.
	RoomCatalog(ctx context.Context) map[types.RoomID]int

	// CoarseAvailability returns dates in w where some room might be free for guests.
	CoarseAvailability(ctx context.Context, w window.Window, guests int) ([]types.Date, error)

	// DetailedAvailability returns the free count per room on d for a party of guests.
	DetailedAvailability(ctx context.Context, d types.Date, guests int) (map[types.RoomID]int, error)
}

var (
	// ErrWindowTooLarge is matched by every RangeError.
	ErrWindowTooLarge = errors.New("query window exceeds provider maximum")
	// ErrInvalidGuests is returned for guest counts below one.
	ErrInvalidGuests = errors.New("guest count must be positive")
	// ErrUnknownBookingType is returned by the registry for unregistered booking systems.
	ErrUnknownBookingType = errors.New("unknown booking type")
)

// RangeError reports a coarse query window wider than the provider allows.
type RangeError struct {
	Provider string
	Window   window.Window
	Max      int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: window %s spans %d days, maximum is %d", e.Provider, e.Window, e.Window.Days(), e.Max)
}

// Is makes errors.Is(err, ErrWindowTooLarge) true for any RangeError.
func (e *RangeError) Is(target error) bool {
	return target == ErrWindowTooLarge
}

// CheckQuery validates the common coarse query contract.
func CheckQuery(provider string, w window.Window, guests, maxDays int) error {
	if guests < 1 {
		return fmt.Errorf("%s: %d guests: %w", provider, guests, ErrInvalidGuests)
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("%s: window %s: %w", provider, w, window.ErrInvalidRange)
	}
	if w.Days() > maxDays {
		return &RangeError{Provider: provider, Window: w, Max: maxDays}
	}
	return nil
}
