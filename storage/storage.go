package storage

import (
	"context"
	"errors"
	"sync"

	"mealsense"
)

// FeedbackStore persists user feedback records keyed by feedback id.
// Durability and any linking back to stored analyses are the store's concern;
// the recorder only validates and hands off.
type FeedbackStore interface {
	Save(ctx context.Context, feedbackID string, fb mealsense.UserFeedback) error
}

// MemFeedbackStore is a simple in-memory implementation for testing
type MemFeedbackStore struct {
	mu      sync.Mutex
	records map[string]mealsense.UserFeedback
	err     error
}

func NewMemFeedbackStore() *MemFeedbackStore {
	return &MemFeedbackStore{records: make(map[string]mealsense.UserFeedback)}
}

func NewMemFeedbackStoreWithError() *MemFeedbackStore {
	return &MemFeedbackStore{err: errors.New("store unavailable")}
}

func (m *MemFeedbackStore) Save(ctx context.Context, feedbackID string, fb mealsense.UserFeedback) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[feedbackID] = fb
	return nil
}

// Get returns a saved record, for test assertions.
func (m *MemFeedbackStore) Get(feedbackID string) (mealsense.UserFeedback, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fb, ok := m.records[feedbackID]
	return fb, ok
}
