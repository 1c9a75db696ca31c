// Package memstore is an in-memory document store used for simulation runs
// and tests. It follows the same read and merge-patch semantics as the
// MongoDB adapter.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Store keeps every collection in maps guarded by one mutex.
type Store struct {
	clock clockwork.Clock

	mu            sync.RWMutex
	parcels       map[string]domain.ParcelRecord
	outputs       map[string]domain.ComputedOutput // by parcel id
	events        []domain.RiskEvent
	subscriptions map[string]domain.Subscription // by userID|parcelID
	users         map[string]domain.User
}

// New creates an empty store. A nil clock uses real time.
func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock:         clock,
		parcels:       make(map[string]domain.ParcelRecord),
		outputs:       make(map[string]domain.ComputedOutput),
		subscriptions: make(map[string]domain.Subscription),
		users:         make(map[string]domain.User),
	}
}

// CheckReadiness always succeeds.
func (s *Store) CheckReadiness(_ context.Context) error { return nil }

// PutParcel inserts or replaces a parcel, assigning an id when empty.
func (s *Store) PutParcel(p domain.ParcelRecord) domain.ParcelRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.parcels[p.ID] = p
	return p
}

// PutOutput inserts or replaces the output of a parcel.
func (s *Store) PutOutput(o domain.ComputedOutput) domain.ComputedOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s.outputs[o.ParcelID] = o
	return o
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u
}

// PutSubscription upserts by (UserID, ParcelID).
func (s *Store) PutSubscription(sub domain.Subscription) domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sub.UserID + "|" + sub.ParcelID
	if prev, ok := s.subscriptions[key]; ok {
		sub.ID = prev.ID
		sub.CreatedAt = prev.CreatedAt
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.clock.Now()
	}
	s.subscriptions[key] = sub
	return sub
}

// FindParcelByID returns domain.ErrNotFound for unknown ids.
func (s *Store) FindParcelByID(_ context.Context, id string) (domain.ParcelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parcels[id]
	if !ok {
		return domain.ParcelRecord{}, fmt.Errorf("parcel %q: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// FindParcelsByName returns every parcel with the given name.
func (s *Store) FindParcelsByName(_ context.Context, name string) ([]domain.ParcelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ParcelRecord
	for _, p := range s.parcels {
		if p.ParcelName == name {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.ParcelRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// FindOutput returns the computed output for a parcel.
func (s *Store) FindOutput(_ context.Context, parcelID string) (domain.ComputedOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outputs[parcelID]
	if !ok {
		return domain.ComputedOutput{}, fmt.Errorf("output for parcel %q: %w", parcelID, domain.ErrNotFound)
	}
	return o, nil
}

// ApplyOutputPatch merges patch into the parcel's output, creating it if
// needed.
func (s *Store) ApplyOutputPatch(_ context.Context, parcelID string, patch domain.OutputPatch) (domain.ComputedOutput, error) {
	if err := patch.Validate(); err != nil {
		return domain.ComputedOutput{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	o, ok := s.outputs[parcelID]
	if !ok {
		o = domain.ComputedOutput{ID: uuid.NewString(), ParcelID: parcelID, CreatedAt: now}
	}
	o = patch.Apply(o)
	o.UpdatedAt = now
	s.outputs[parcelID] = o
	return o, nil
}

// InsertRiskEvent stores a new event and returns it with its id.
func (s *Store) InsertRiskEvent(_ context.Context, e domain.RiskEvent) (domain.RiskEvent, error) {
	if err := e.Validate(); err != nil {
		return domain.RiskEvent{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = uuid.NewString()
	e.Audience = slices.Clone(e.Audience)
	s.events = append(s.events, e)
	return e, nil
}

// ListEvents returns matching events newest first.
func (s *Store) ListEvents(_ context.Context, f domain.EventFilter) ([]domain.RiskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RiskEvent
	for _, e := range s.events {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.RiskEvent) int { return b.GeneratedAt.Compare(a.GeneratedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CountEvents returns the number of matching events, ignoring Limit.
func (s *Store) CountEvents(_ context.Context, f domain.EventFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.events {
		if f.Matches(e) {
			n++
		}
	}
	return n, nil
}

// ActiveSubscriptionsForParcel lists active subscriptions for a parcel.
func (s *Store) ActiveSubscriptionsForParcel(_ context.Context, parcelID string) ([]domain.Subscription, error) {
	return s.activeSubscriptions(func(sub domain.Subscription) bool { return sub.ParcelID == parcelID }), nil
}

// ActiveSubscriptionsForUser lists a user's active subscriptions.
func (s *Store) ActiveSubscriptionsForUser(_ context.Context, userID string) ([]domain.Subscription, error) {
	return s.activeSubscriptions(func(sub domain.Subscription) bool { return sub.UserID == userID }), nil
}

func (s *Store) activeSubscriptions(match func(domain.Subscription) bool) []domain.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Subscription
	for _, sub := range s.subscriptions {
		if sub.IsActive && match(sub) {
			out = append(out, sub)
		}
	}
	slices.SortFunc(out, func(a, b domain.Subscription) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// FindUser returns domain.ErrNotFound for unknown users.
func (s *Store) FindUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("user %q: %w", userID, domain.ErrNotFound)
	}
	return u, nil
}
