package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alex-user-go/hutavail/internal/availability"
	"github.com/alex-user-go/hutavail/internal/availability/ratelimit"
	"github.com/alex-user-go/hutavail/internal/availability/types"
	"github.com/alex-user-go/hutavail/internal/middleware"
	"github.com/alex-user-go/hutavail/internal/providers"
	"github.com/alex-user-go/hutavail/internal/roster"
)

// Service is the availability backend used by the handler.
type Service interface {
	Huts() []roster.Hut
	Availability(ctx context.Context, slug string, start, end types.Date) (availability.HutAvailability, error)
}

// Handler handles HTTP requests.
type Handler struct {
	service      Service
	rateLimiter  *ratelimit.Keyed
	maxRangeDays int
	logger       *slog.Logger
}

// New creates a new Handler. Ranges longer than maxRangeDays are rejected.
func New(
	service Service,
	rateLimiter *ratelimit.Keyed,
	maxRangeDays int,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		service:      service,
		rateLimiter:  rateLimiter,
		maxRangeDays: maxRangeDays,
		logger:       logger,
	}
}

// Routes mounts the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/huts", h.HutsHandler)
	r.Get("/huts/{slug}/availability", h.AvailabilityHandler)
}

// HutsResponse lists the roster.
type HutsResponse struct {
	Huts []roster.Hut `json:"huts"`
}

// AvailabilityResponse represents the complete availability answer.
type AvailabilityResponse struct {
	Hut   roster.Hut                  `json:"hut"`
	Range RangeInfo                   `json:"range"`
	Stats Stats                       `json:"stats"`
	Dates map[types.Date]types.Result `json:"dates"`
}

// RangeInfo contains the requested date range.
type RangeInfo struct {
	Start types.Date `json:"start"`
	End   types.Date `json:"end"`
	Days  int        `json:"days"`
}

// Stats contains request statistics.
type Stats struct {
	Shared     bool  `json:"shared"`
	TotalBeds  int   `json:"total_beds"`
	DurationMs int64 `json:"duration_ms"`
}

// HutsHandler handles /huts requests.
func (h *Handler) HutsHandler(w http.ResponseWriter, r *http.Request) {
	huts := h.service.Huts()
	if huts == nil {
		huts = []roster.Hut{}
	}
	h.writeJSON(w, http.StatusOK, HutsResponse{Huts: huts})
}

// AvailabilityHandler handles /huts/{slug}/availability requests.
func (h *Handler) AvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := middleware.RequestID(r.Context())

	ip := ExtractIP(r)
	if !h.rateLimiter.Allow(ip) {
		h.logger.Warn("rate limit exceeded", "request_id", requestID, "ip", ip)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	params, err := ParseRangeParams(r, h.maxRangeDays)
	if err != nil {
		h.logger.Debug("invalid request parameters", "request_id", requestID, "error", err, "ip", ip)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slug := chi.URLParam(r, "slug")
	result, err := h.service.Availability(r.Context(), slug, params.Start, params.End)
	if err != nil {
		status, message := errorStatus(err)
		h.logger.Log(r.Context(), levelFor(status), "availability failed",
			"request_id", requestID,
			"hut", slug,
			"start", params.Start.String(),
			"end", params.End.String(),
			"status", status,
			"error", err,
		)
		writeError(w, status, message)
		return
	}

	total := 0
	for _, res := range result.Dates {
		total += res.NumAvailable
	}

	h.writeJSON(w, http.StatusOK, AvailabilityResponse{
		Hut: result.Hut,
		Range: RangeInfo{
			Start: params.Start,
			End:   params.End,
			Days:  params.Start.DaysUntil(params.End) + 1,
		},
		Stats: Stats{
			Shared:     result.Shared,
			TotalBeds:  total,
			DurationMs: time.Since(startTime).Milliseconds(),
		},
		Dates: result.Dates,
	})
}

// RangeParams holds a validated date range.
type RangeParams struct {
	Start types.Date
	End   types.Date
}

// ParseRangeParams parses and validates start and end from the request.
func ParseRangeParams(r *http.Request, maxDays int) (*RangeParams, error) {
	query := r.URL.Query()

	start, err := parseDate(query.Get("start"), "start")
	if err != nil {
		return nil, err
	}
	end, err := parseDate(query.Get("end"), "end")
	if err != nil {
		return nil, err
	}

	if end.Before(start) {
		return nil, fmt.Errorf("end must not be before start")
	}
	if maxDays > 0 && start.DaysUntil(end)+1 > maxDays {
		return nil, fmt.Errorf("range must not exceed %d days", maxDays)
	}

	return &RangeParams{Start: start, End: end}, nil
}

func parseDate(value, name string) (types.Date, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return types.Date{}, fmt.Errorf("%s is required", name)
	}
	d, err := types.ParseDate(value)
	if err != nil {
		return types.Date{}, fmt.Errorf("%s must be in YYYY-MM-DD format", name)
	}
	return d, nil
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, availability.ErrUnknownHut):
		return http.StatusNotFound, "unknown hut"
	case errors.Is(err, providers.ErrUnknownBookingType):
		return http.StatusNotImplemented, "booking system not supported"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "availability failed"
	}
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		return slog.LevelError
	}
	return slog.LevelWarn
}

// ExtractIP extracts the client IP from the request.
// Checks X-Forwarded-For, X-Real-IP, then falls back to RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Can't change status after WriteHeader, just log
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
