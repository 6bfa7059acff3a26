package alerts

import (
	"log"
	"sort"
	"sync"
)

// Delta reports what Apply did to the store.
type Delta struct {
	Inserted bool
	Updated  bool
	// Rejected means the event carried an earlier-lifecycle status than
	// the stored record and was discarded (out-of-order delivery guard).
	Rejected bool
	Alert    Alert
}

// Store holds the live alert set, keyed by alert ID. It is mutated by a
// single writer (the dispatch orchestrator); readers get copied snapshots.
type Store struct {
	mu   sync.RWMutex
	byID map[string]Alert
}

func NewStore() *Store {
	return &Store{byID: make(map[string]Alert)}
}

// Apply folds one push-channel event into the store, idempotently.
//
// alert-created inserts if the ID is unseen, otherwise behaves as an
// update (at-least-once delivery means creates repeat on reconnect).
// alert-updated replaces the record by ID, inserting if absent: over an
// unreliable channel an update can race ahead of its create. A status
// regression is rejected wholesale.
func (s *Store) Apply(ev Event) Delta {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := ev.Alert
	existing, ok := s.byID[incoming.ID]
	if !ok {
		s.byID[incoming.ID] = incoming
		return Delta{Inserted: true, Alert: incoming}
	}

	if incoming.Status.Rank() < existing.Status.Rank() {
		log.Printf("[DEBUG] Alert Store: rejected regression for %s (%s -> %s)",
			incoming.ID, existing.Status, incoming.Status)
		return Delta{Rejected: true, Alert: existing}
	}

	s.byID[incoming.ID] = incoming
	return Delta{Updated: true, Alert: incoming}
}

// Replace substitutes the entire contents. Used for initial hydration:
// either a restored session snapshot or a fresh active-alerts fetch,
// never a merge of both.
func (s *Store) Replace(as []Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]Alert, len(as))
	for _, a := range as {
		s.byID[a.ID] = a
	}
}

func (s *Store) Get(id string) (Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	return a, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// AlertsForSite returns the site's alerts, newest first.
func (s *Store) AlertsForSite(siteID string) []Alert {
	s.mu.RLock()
	out := make([]Alert, 0, 8)
	for _, a := range s.byID {
		if a.SiteID == siteID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out
}

// Recent returns up to n alerts ordered by CreatedAt descending.
func (s *Store) Recent(n int) []Alert {
	all := s.Snapshot()
	if n < len(all) {
		all = all[:n]
	}
	return all
}

// Snapshot copies every record, newest first.
func (s *Store) Snapshot() []Alert {
	s.mu.RLock()
	out := make([]Alert, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out
}

// SiteSettled reports whether the site has alerts and every one of them
// is Resolved. A settled site is what arms the incident auto-close timer.
func (s *Store) SiteSettled(siteID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := false
	for _, a := range s.byID {
		if a.SiteID != siteID {
			continue
		}
		seen = true
		if !a.Resolved() {
			return false
		}
	}
	return seen
}

// HasUnresolved reports whether any alert is not yet Resolved.
func (s *Store) HasUnresolved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.byID {
		if !a.Resolved() {
			return true
		}
	}
	return false
}

func sortNewestFirst(as []Alert) {
	sort.SliceStable(as, func(i, j int) bool {
		if as[i].CreatedAt.Equal(as[j].CreatedAt) {
			return as[i].ID > as[j].ID
		}
		return as[i].CreatedAt.After(as[j].CreatedAt)
	})
}
