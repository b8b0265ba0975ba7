package kv

import (
	"context"
	"time"
)

// FirstVisitTTL is how long a visitor's first-visit day is remembered.
// Visits after that are never on the first day, so the marker is useless.
const FirstVisitTTL = 48 * time.Hour

const firstDayPrefix = "first_day/"

// FirstVisitStore remembers the date (YYYY-MM-DD) of a visitor's first visit.
type FirstVisitStore struct {
	s   *Store
	ttl time.Duration
}

func NewFirstVisitStore(s *Store) *FirstVisitStore {
	return &FirstVisitStore{s: s, ttl: FirstVisitTTL}
}

func (f *FirstVisitStore) FirstVisitDay(_ context.Context, visitorID string) (string, bool, error) {
	return f.s.get(firstDayPrefix + visitorID)
}

func (f *FirstVisitStore) SetFirstVisitDay(_ context.Context, visitorID, day string) error {
	return f.s.set(firstDayPrefix+visitorID, day, f.ttl)
}
