// Package suedtirol queries properties on the Booking Südtirol widget API.
package suedtirol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alex-user-go/hutavail/internal/availability/ratelimit"
	"github.com/alex-user-go/hutavail/internal/availability/types"
	"github.com/alex-user-go/hutavail/internal/availability/window"
	"github.com/alex-user-go/hutavail/internal/config"
	"github.com/alex-user-go/hutavail/internal/obs"
	"github.com/alex-user-go/hutavail/internal/providers"
)

// BookingType is the roster booking_type served by this package.
const BookingType = "bookingsuedtirol"

const (
	endpointRooms          = "rooms"
	endpointAvailabilities = "availabilities"
	endpointOffers         = "offers"

	adultAge = 18
)

// Client is the Source for one Booking Südtirol property.
type Client struct {
	bookingID     string
	baseURL       string
	maxWindowDays int
	httpClient    *http.Client
	coarse        *ratelimit.Limiter
	detailed      *ratelimit.Limiter
	metrics       *obs.Metrics
	logger        *slog.Logger
}

var _ providers.Source = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from the configured timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLimiters replaces the limiters built from the configuration.
func WithLimiters(coarse, detailed *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.coarse = coarse
		c.detailed = detailed
	}
}

// NewClient creates a new Client. The room catalog and coarse queries share the coarse limiter.
func NewClient(bookingID string, cfg config.Provider, metrics *obs.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		bookingID:     bookingID,
		baseURL:       cfg.BaseURL,
		maxWindowDays: cfg.MaxWindowDays,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		coarse:   ratelimit.New(cfg.CoarseLimit.MaxCalls, cfg.CoarseLimit.Period),
		detailed: ratelimit.New(cfg.DetailedLimit.MaxCalls, cfg.DetailedLimit.Period),
		metrics:  metrics,
		logger:   logger.With("provider", BookingType, "booking_id", bookingID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Factory returns a providers.Factory building Clients.
func Factory(metrics *obs.Metrics, logger *slog.Logger) providers.Factory {
	return func(bookingID string, cfg config.Provider) (providers.Source, error) {
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		return NewClient(bookingID, cfg, metrics, logger), nil
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return BookingType
}

// MaxWindowDays returns the widest accepted availabilities query.
func (c *Client) MaxWindowDays() int {
	return c.maxWindowDays
}

type roomPayload struct {
	RoomID    roomID `json:"room_id"`
	Occupancy struct {
		Min int `json:"min"`
		Max int `json:"max"`
	} `json:"occupancy"`
}

type datePayload struct {
	Date string `json:"date"`
}

type offersPayload struct {
	Rooms []struct {
		RoomID   roomID `json:"room_id"`
		RoomFree int    `json:"room_free"`
	} `json:"rooms"`
}

// roomID accepts both numeric and string identifiers.
type roomID string

func (r *roomID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		return fmt.Errorf("empty room_id")
	}
	*r = roomID(b)
	return nil
}

// RoomCatalog returns the maximum occupancy of every room of the property.
func (c *Client) RoomCatalog(ctx context.Context) map[types.RoomID]int {
	var rooms []roomPayload
	if err := c.get(ctx, endpointRooms, c.coarse, url.Values{}, &rooms); err != nil {
		c.logger.Warn("room catalog unavailable", "error", err)
		return map[types.RoomID]int{}
	}

	catalog := make(map[types.RoomID]int, len(rooms))
	for _, room := range rooms {
		catalog[types.RoomID(room.RoomID)] = room.Occupancy.Max
	}
	return catalog
}

// CoarseAvailability returns the dates in w with possible availability for guests.
func (c *Client) CoarseAvailability(ctx context.Context, w window.Window, guests int) ([]types.Date, error) {
	if err := providers.CheckQuery(BookingType, w, guests, c.maxWindowDays); err != nil {
		return nil, err
	}

	var items []datePayload
	if err := c.get(ctx, endpointAvailabilities, c.coarse, query(w.Start, w.End, guests), &items); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("coarse availability %s: %w", w, err)
		}
		c.logger.Warn("coarse availability failed", "window", w.String(), "guests", guests, "error", err)
		return nil, nil
	}

	dates := make([]types.Date, 0, len(items))
	for _, item := range items {
		d, err := types.ParseDate(item.Date)
		if err != nil {
			c.logger.Warn("skipping malformed date", "value", item.Date, "error", err)
			continue
		}
		if !w.Contains(d) {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// DetailedAvailability returns the number of free rooms per room on d for guests.
func (c *Client) DetailedAvailability(ctx context.Context, d types.Date, guests int) (map[types.RoomID]int, error) {
	if guests < 1 {
		return nil, fmt.Errorf("%s: %d guests: %w", BookingType, guests, providers.ErrInvalidGuests)
	}

	var offers offersPayload
	if err := c.get(ctx, endpointOffers, c.detailed, query(d, d.AddDays(1), guests), &offers); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("detailed availability %s: %w", d, err)
		}
		c.logger.Warn("detailed availability failed", "date", d.String(), "guests", guests, "error", err)
		return map[types.RoomID]int{}, nil
	}

	rooms := make(map[types.RoomID]int, len(offers.Rooms))
	for _, room := range offers.Rooms {
		if room.RoomFree < 0 {
			continue
		}
		rooms[types.RoomID(room.RoomID)] = room.RoomFree
	}
	return rooms, nil
}

// get waits for the limiter, then fetches one endpoint of the property and decodes JSON into out.
func (c *Client) get(ctx context.Context, endpoint string, limiter *ratelimit.Limiter, q url.Values, out any) error {
	waitStart := time.Now()
	if err := limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	c.metrics.ObserveLimiterWait(BookingType, endpoint, time.Since(waitStart))

	start := time.Now()
	err := c.fetch(ctx, endpoint, q, out)
	c.metrics.RecordUpstream(BookingType, endpoint, time.Since(start), err)
	return err
}

func (c *Client) fetch(ctx context.Context, endpoint string, q url.Values, out any) error {
	u, err := url.Parse(c.baseURL + "/properties/" + url.PathEscape(c.bookingID) + "/" + endpoint)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	q.Set("lang", "en")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", endpoint, err)
	}
	return nil
}

// query builds the shared availabilities/offers parameters. Every guest is booked as an adult.
func query(from, to types.Date, guests int) url.Values {
	ages := make([]int, guests)
	for i := range ages {
		ages[i] = adultAge
	}
	encoded, _ := json.Marshal([][]int{ages})

	q := url.Values{}
	q.Set("from", from.String())
	q.Set("to", to.String())
	q.Set("guestCount", strconv.Itoa(guests))
	q.Set("guests", string(encoded))
	return q
}
