package domain

import (
	"context"
	"slices"
	"time"
)

// EventFilter selects risk events. Zero fields do not constrain. Results are
// ordered newest first.
type EventFilter struct {
	Kind      EventKind
	ParcelID  string
	ParcelIDs []string
	Band      Band
	UserID    string
	Audience  Audience
	Since     time.Time // inclusive
	Limit     int
}

// Matches reports whether e satisfies every set field of f.
func (f EventFilter) Matches(e RiskEvent) bool {
	switch {
	case f.Kind != "" && e.Kind != f.Kind:
		return false
	case f.ParcelID != "" && e.ParcelID != f.ParcelID:
		return false
	case f.ParcelIDs != nil && !slices.Contains(f.ParcelIDs, e.ParcelID):
		return false
	case f.Band != "" && e.Band != f.Band:
		return false
	case f.UserID != "" && e.UserID() != f.UserID:
		return false
	case f.Audience != "" && !e.HasAudience(f.Audience):
		return false
	case !f.Since.IsZero() && e.GeneratedAt.Before(f.Since):
		return false
	}
	return true
}

// RawMessage is an unprocessed message from the run request topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}
