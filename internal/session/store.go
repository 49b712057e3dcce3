// Package session holds the two tab-scoped slots the guest client carries
// across screens: the verified booking number and the welcome text produced
// by verification.
//
// A Store is scoped to one tab. Reads are consistent with the most recent
// Save or Clear made through the same Store.
package session

import (
	"context"
	"sync"
)

// Slot keys, shared by every backend.
const (
	KeyBookingNumber = "bookingNumber"
	KeyWelcome       = "welcome"
)

// Store is the tab-scoped session state.
type Store interface {
	// Save writes both slots, overwriting prior values. A nil welcome
	// leaves the welcome slot absent.
	Save(ctx context.Context, bookingNumber string, welcome *string) error
	BookingNumber(ctx context.Context) (string, bool, error)
	Welcome(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

// Backend is a Store that owns resources.
type Backend interface {
	Store
	Close() error
}

// MemoryStore keeps the slots in process memory. One process is one tab.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]string)}
}

func (s *MemoryStore) Save(_ context.Context, bookingNumber string, welcome *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots[KeyBookingNumber] = bookingNumber
	if welcome != nil {
		s.slots[KeyWelcome] = *welcome
	} else {
		delete(s.slots, KeyWelcome)
	}
	return nil
}

func (s *MemoryStore) BookingNumber(_ context.Context) (string, bool, error) {
	return s.get(KeyBookingNumber)
}

func (s *MemoryStore) Welcome(_ context.Context) (string, bool, error) {
	return s.get(KeyWelcome)
}

func (s *MemoryStore) get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.slots[key]
	return v, ok, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.slots)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
