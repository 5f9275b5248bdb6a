// Package suedtiroltest provides an in-memory Booking Südtirol widget API.
package suedtiroltest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alex-user-go/hutavail/internal/availability/types"
)

// Room is one bookable room of a property.
type Room struct {
	ID        string
	Occupancy int
	// Free is the number of free units of this room per night.
	Free map[types.Date]int
}

// Server serves the rooms, availabilities and offers endpoints for its properties.
type Server struct {
	mu         sync.Mutex
	properties map[string][]Room
	calls      map[string]int
	rng        *rand.Rand

	failureRate   float64
	malformedRate float64
	minLatency    time.Duration
	maxLatency    time.Duration
	lensConflicts bool
	logger        *slog.Logger

	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithFailureRate makes that share of requests fail with 503.
func WithFailureRate(rate float64) Option {
	return func(s *Server) {
		s.failureRate = rate
	}
}

// WithMalformedRate makes that share of successful responses carry broken payloads.
func WithMalformedRate(rate float64) Option {
	return func(s *Server) {
		s.malformedRate = rate
	}
}

// WithLatency delays every response by a random duration in [minimum, maximum].
func WithLatency(minimum, maximum time.Duration) Option {
	return func(s *Server) {
		s.minLatency = minimum
		s.maxLatency = maximum
	}
}

// WithLensConflicts makes offers report one unit less per extra guest, so
// queries for different guest counts disagree on the same room.
func WithLensConflicts() Option {
	return func(s *Server) {
		s.lensConflicts = true
	}
}

// WithSeed fixes the random source.
func WithSeed(seed int64) Option {
	return func(s *Server) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithLogger logs every request.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new Server without properties.
func NewServer(opts ...Option) *Server {
	s := &Server{
		properties: make(map[string][]Room),
		calls:      make(map[string]int),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/properties/{id}/rooms", s.handleRooms)
	r.Get("/properties/{id}/availabilities", s.handleAvailabilities)
	r.Get("/properties/{id}/offers", s.handleOffers)
	s.router = r

	return s
}

// AddProperty registers or replaces a property.
func (s *Server) AddProperty(id string, rooms ...Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[id] = rooms
}

// Calls returns how many requests reached an endpoint: rooms, availabilities or offers.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// Generate adds a property with random rooms and availability over days nights from start.
func (s *Server) Generate(id string, start types.Date, days int) {
	s.mu.Lock()
	rng := rand.New(rand.NewSource(s.rng.Int63()))
	s.mu.Unlock()

	sizes := []int{1, 2, 2, 4, 4, 6}
	rooms := make([]Room, 0, len(sizes))
	for i, size := range sizes {
		room := Room{
			ID:        strconv.Itoa(1000 + i),
			Occupancy: size,
			Free:      make(map[types.Date]int),
		}
		for d := 0; d < days; d++ {
			if n := rng.Intn(4) - 1; n > 0 {
				room.Free[start.AddDays(d)] = n
			}
		}
		rooms = append(rooms, room)
	}
	s.AddProperty(id, rooms...)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// begin records the call, applies latency and failure injection and returns the
// property's rooms. It reports false when the response was already written.
func (s *Server) begin(w http.ResponseWriter, r *http.Request, endpoint string) ([]Room, bool, bool) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	s.calls[endpoint]++
	rooms, ok := s.properties[id]
	fail := s.rng.Float64() < s.failureRate
	malformed := s.rng.Float64() < s.malformedRate
	var latency time.Duration
	if s.maxLatency > s.minLatency {
		latency = s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
	} else {
		latency = s.minLatency
	}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("request", "endpoint", endpoint, "property", id, "query", r.URL.RawQuery)
	}

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-r.Context().Done():
			return nil, false, false
		}
	}

	if r.URL.Query().Get("lang") == "" {
		http.Error(w, `{"error":"lang is required"}`, http.StatusBadRequest)
		return nil, false, false
	}
	if fail {
		http.Error(w, `{"error":"service unavailable"}`, http.StatusServiceUnavailable)
		return nil, false, false
	}
	if !ok {
		http.Error(w, `{"error":"unknown property"}`, http.StatusNotFound)
		return nil, false, false
	}
	return rooms, malformed, true
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	rooms, malformed, ok := s.begin(w, r, "rooms")
	if !ok {
		return
	}
	if malformed {
		writeRaw(w, `[{"room_id":`)
		return
	}

	type occupancy struct {
		Min int `json:"min"`
		Max int `json:"max"`
	}
	type room struct {
		RoomID    any       `json:"room_id"`
		Occupancy occupancy `json:"occupancy"`
	}

	out := make([]room, 0, len(rooms))
	for _, rm := range rooms {
		var id any = rm.ID
		if n, err := strconv.Atoi(rm.ID); err == nil {
			id = n
		}
		out = append(out, room{RoomID: id, Occupancy: occupancy{Min: 1, Max: rm.Occupancy}})
	}
	writeJSON(w, out)
}

func (s *Server) handleAvailabilities(w http.ResponseWriter, r *http.Request) {
	rooms, malformed, ok := s.begin(w, r, "availabilities")
	if !ok {
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	type item struct {
		Date string `json:"date"`
	}
	out := []item{}
	for _, d := range types.DateRange(q.from, q.to) {
		for _, rm := range rooms {
			if rm.Occupancy >= q.guests && rm.Free[d] > 0 {
				out = append(out, item{Date: d.String()})
				break
			}
		}
	}
	if malformed {
		out = append(out, item{Date: "not-a-date"})
	}
	writeJSON(w, out)
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	rooms, malformed, ok := s.begin(w, r, "offers")
	if !ok {
		return
	}
	if malformed {
		writeRaw(w, `{"rooms":[{"room_id":1,"room_free":`)
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	type offer struct {
		RoomID   string `json:"room_id"`
		RoomFree int    `json:"room_free"`
	}
	out := struct {
		Rooms []offer `json:"rooms"`
	}{Rooms: []offer{}}

	for _, rm := range rooms {
		free := rm.Free[q.from]
		if rm.Occupancy < q.guests || free <= 0 {
			continue
		}
		if s.lensConflicts {
			free = max(free-(q.guests-1), 0)
		}
		out.Rooms = append(out.Rooms, offer{RoomID: rm.ID, RoomFree: free})
	}
	sort.Slice(out.Rooms, func(i, j int) bool { return out.Rooms[i].RoomID < out.Rooms[j].RoomID })
	writeJSON(w, out)
}

type query struct {
	from   types.Date
	to     types.Date
	guests int
}

func parseQuery(r *http.Request) (query, error) {
	v := r.URL.Query()
	from, err := types.ParseDate(v.Get("from"))
	if err != nil {
		return query{}, fmt.Errorf("invalid from")
	}
	to, err := types.ParseDate(v.Get("to"))
	if err != nil {
		return query{}, fmt.Errorf("invalid to")
	}
	guests, err := strconv.Atoi(v.Get("guestCount"))
	if err != nil || guests < 1 {
		return query{}, fmt.Errorf("invalid guestCount")
	}

	var ages [][]int
	if err := json.Unmarshal([]byte(v.Get("guests")), &ages); err != nil || len(ages) != 1 || len(ages[0]) != guests {
		return query{}, fmt.Errorf("guests must list one age per guest")
	}
	return query{from: from, to: to, guests: guests}, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}
