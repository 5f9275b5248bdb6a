// Package roster loads the list of huts and how each one is booked.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// ErrInvalidRoster wraps every roster parse or validation failure.
var ErrInvalidRoster = errors.New("invalid roster")

// Hut is one lodging provider.
type Hut struct {
	Name        string `yaml:"name" json:"name"`
	Slug        string `yaml:"slug" json:"slug"`
	BookingType string `yaml:"booking_type" json:"booking_type"`
	BookingID   string `yaml:"booking_id" json:"booking_id"`
}

// Roster is an ordered set of huts with unique slugs.
type Roster struct {
	huts   []Hut
	bySlug map[string]int
}

// New validates huts, derives missing slugs and builds a Roster.
func New(huts []Hut) (*Roster, error) {
	r := &Roster{
		huts:   make([]Hut, 0, len(huts)),
		bySlug: make(map[string]int, len(huts)),
	}
	for i, h := range huts {
		h.Name = strings.TrimSpace(h.Name)
		h.BookingType = strings.TrimSpace(h.BookingType)
		h.BookingID = strings.TrimSpace(h.BookingID)
		h.Slug = strings.TrimSpace(h.Slug)

		if h.Name == "" {
			return nil, fmt.Errorf("%w: hut %d has no name", ErrInvalidRoster, i+1)
		}
		if h.BookingType == "" || h.BookingID == "" {
			return nil, fmt.Errorf("%w: hut %q needs booking_type and booking_id", ErrInvalidRoster, h.Name)
		}
		if h.Slug == "" {
			h.Slug = Slug(h.Name)
		}
		if _, dup := r.bySlug[h.Slug]; dup {
			return nil, fmt.Errorf("%w: duplicate slug %q", ErrInvalidRoster, h.Slug)
		}

		r.bySlug[h.Slug] = len(r.huts)
		r.huts = append(r.huts, h)
	}
	return r, nil
}

// Load reads a roster file, choosing CSV or YAML by extension.
func Load(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var huts []Hut
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		huts, err = ParseYAML(f)
	default:
		huts, err = ParseCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New(huts)
}

// ParseCSV reads huts from CSV with a header naming at least name, booking_type
// and booking_id. A slug column is optional.
func ParseCSV(r io.Reader) ([]Hut, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidRoster, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"name", "booking_type", "booking_id"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidRoster, required)
		}
	}

	field := func(record []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var huts []Hut
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRoster, err)
		}
		huts = append(huts, Hut{
			Name:        field(record, "name"),
			Slug:        field(record, "slug"),
			BookingType: field(record, "booking_type"),
			BookingID:   field(record, "booking_id"),
		})
	}
	return huts, nil
}

// ParseYAML reads huts from a document of the form {huts: [{name, booking_type, booking_id, slug}]}.
func ParseYAML(r io.Reader) ([]Hut, error) {
	var doc struct {
		Huts []Hut `yaml:"huts"`
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoster, err)
	}
	return doc.Huts, nil
}

// Huts returns the huts in roster order.
func (r *Roster) Huts() []Hut {
	out := make([]Hut, len(r.huts))
	copy(out, r.huts)
	return out
}

// Len returns the number of huts.
func (r *Roster) Len() int {
	return len(r.huts)
}

// Get looks up a hut by slug.
func (r *Roster) Get(slug string) (Hut, bool) {
	i, ok := r.bySlug[slug]
	if !ok {
		return Hut{}, false
	}
	return r.huts[i], true
}

// Filter returns a Roster holding only huts with one of the booking types.
// With no types it returns r unchanged.
func (r *Roster) Filter(bookingTypes ...string) *Roster {
	if len(bookingTypes) == 0 {
		return r
	}
	keep := make(map[string]bool, len(bookingTypes))
	for _, t := range bookingTypes {
		keep[t] = true
	}

	out := &Roster{bySlug: make(map[string]int)}
	for _, h := range r.huts {
		if !keep[h.BookingType] {
			continue
		}
		out.bySlug[h.Slug] = len(out.huts)
		out.huts = append(out.huts, h)
	}
	return out
}

// BookingTypes returns the distinct booking types in sorted order.
func (r *Roster) BookingTypes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range r.huts {
		if !seen[h.BookingType] {
			seen[h.BookingType] = true
			out = append(out, h.BookingType)
		}
	}
	sort.Strings(out)
	return out
}

// Slug derives a URL-safe identifier from a hut name: accents are stripped,
// letters and digits lowercased, and every other run of characters becomes one dash.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r == 'ß':
			b.WriteString("ss")
			dash = false
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToLower(r))
			dash = false
		default:
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
