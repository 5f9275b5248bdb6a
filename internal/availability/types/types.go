package types

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the normalized date for the given components,
// so NewDate(2024, 1, 32) is February 1st.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current local calendar day.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool {
	return d.Time().After(o.Time())
}

// DaysUntil returns the number of days from d to o, negative if o is earlier.
func (d Date) DaysUntil(o Date) int {
	return int(o.Time().Sub(d.Time()).Hours() / 24)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

// MarshalText implements encoding.TextMarshaler, which also lets Date key JSON objects.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateRange returns every date in [start, end] in order. It is empty when end is before start.
func DateRange(start, end Date) []Date {
	n := start.DaysUntil(end)
	if n < 0 {
		return nil
	}
	dates := make([]Date, 0, n+1)
	for i := 0; i <= n; i++ {
		dates = append(dates, start.AddDays(i))
	}
	return dates
}

// RoomID identifies a bookable unit within one provider.
type RoomID string

// RoomAvailability maps room size (maximum occupancy) to the number of free rooms of that size.
type RoomAvailability map[int]int

// Beds returns the total bed capacity, the sum of size times count.
func (r RoomAvailability) Beds() int {
	total := 0
	for size, count := range r {
		total += size * count
	}
	return total
}

// Result is the availability of one hut on one day.
type Result struct {
	NumAvailable int              `json:"num_available"`
	Rooms        RoomAvailability `json:"rooms"`
}

// NewResult builds a Result whose NumAvailable is derived from rooms.
func NewResult(rooms RoomAvailability) Result {
	if rooms == nil {
		rooms = RoomAvailability{}
	}
	return Result{
		NumAvailable: rooms.Beds(),
		Rooms:        rooms,
	}
}

// Cache stores per-date results between aggregation runs.
// Implementations never expire entries on their own unless documented.
type Cache interface {
	Get(d Date) (Result, bool)
	Put(d Date, r Result)
}

// MapCache is a plain caller-owned Cache. It is not safe for concurrent use.
type MapCache map[Date]Result

// Get returns the cached result for d.
func (c MapCache) Get(d Date) (Result, bool) {
	r, ok := c[d]
	return r, ok
}

// Put stores r for d.
func (c MapCache) Put(d Date, r Result) {
	c[d] = r
}
