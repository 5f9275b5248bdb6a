// Package window splits date ranges into provider-sized query windows.
package window

import (
	"errors"
	"fmt"

	"github.com/alex-user-go/hutavail/internal/availability/types"
)

var (
	// ErrInvalidRange is returned when a range ends before it starts.
	ErrInvalidRange = errors.New("range end is before start")
	// ErrInvalidSpan is returned when the maximum span is not positive.
	ErrInvalidSpan = errors.New("maximum window span must be at least one day")
)

// Window is an inclusive range of dates.
type Window struct {
	Start types.Date
	End   types.Date
}

// Days returns the number of days covered by w, counting both ends.
func (w Window) Days() int {
	return w.Start.DaysUntil(w.End) + 1
}

// Contains reports whether d falls inside w.
func (w Window) Contains(d types.Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start, w.End)
}

// Split covers [start, end] with contiguous, non-overlapping windows of at most maxSpan days each.
func Split(start, end types.Date, maxSpan int) ([]Window, error) {
	if maxSpan < 1 {
		return nil, fmt.Errorf("split %s..%s by %d: %w", start, end, maxSpan, ErrInvalidSpan)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("split %s..%s: %w", start, end, ErrInvalidRange)
	}

	windows := make([]Window, 0, start.DaysUntil(end)/maxSpan+1)
	for cursor := start; !cursor.After(end); {
		last := cursor.AddDays(maxSpan - 1)
		if last.After(end) {
			last = end
		}
		windows = append(windows, Window{Start: cursor, End: last})
		cursor = last.AddDays(1)
	}

	return windows, nil
}
