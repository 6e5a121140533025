// Package browserassist implements the browser assistant core: a
// passive observation store with bounded capacity, fixed-rule analyzers that
// only ever emit advisory hints, and a human-confirmation gate. Nothing in
// this package issues a command to a browser; method names that would
// indicate command/automation are structurally forbidden by pkg/boundary.
package browserassist

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxObservations is the default FIFO eviction capacity.
const MaxObservations = 10000

// ObservationKind tags what kind of passive signal was received.
type ObservationKind string

const (
	ObservationPageLoad   ObservationKind = "PAGE_LOAD"
	ObservationFormSubmit ObservationKind = "FORM_SUBMIT"
	ObservationResponse   ObservationKind = "RESPONSE"
	ObservationConsole    ObservationKind = "CONSOLE"
)

// BrowserObservation is an immutable record the assistant received from an
// external (human-driven) browser session. It carries no verdict.
type BrowserObservation struct {
	ID        string
	Kind      ObservationKind
	URL       string // credential-stripped
	Content   string
	Meta      map[string]string
	StampedAt time.Time
}

// Store is a bounded, FIFO-evicting passive observation store.
type Store struct {
	mu       sync.Mutex
	capacity int
	order    []string
	byID     map[string]BrowserObservation
	clock    func() time.Time
}

// NewStore returns an empty store with the given capacity (0 defaults to
// MaxObservations).
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = MaxObservations
	}
	return &Store{
		capacity: capacity,
		byID:     make(map[string]BrowserObservation),
		clock:    time.Now,
	}
}

// ReceiveObservation sanitizes url (stripping embedded credentials),
// stamps a UTC timestamp, and stores an immutable BrowserObservation. It
// never sends anything back to the browser.
func (s *Store) ReceiveObservation(kind ObservationKind, rawURL, content string, meta map[string]string) BrowserObservation {
	obs := BrowserObservation{
		ID:        uuid.New().String(),
		Kind:      kind,
		URL:       sanitizeURL(rawURL),
		Content:   content,
		Meta:      meta,
		StampedAt: s.clock().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[obs.ID] = obs
	s.order = append(s.order, obs.ID)
	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.byID, oldest)
	}

	return obs
}

// All returns a snapshot of stored observations, oldest first.
func (s *Store) All() []BrowserObservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BrowserObservation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Len reports the current observation count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// sanitizeURL strips userinfo (embedded credentials) from rawURL. A URL that
// fails to parse is returned unchanged — the store never refuses to record
// a passive observation over formatting.
func sanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.User != nil {
		u.User = nil
	}
	return u.String()
}

// normalizeForSimilarity lower-cases and trims whitespace before
// similarity scoring. The resulting threshold semantics vary by content
// language, which is why the threshold stays tunable.
func normalizeForSimilarity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
