package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"mealsense"
)

// FileFeedbackStore appends feedback records as JSON lines to a local file.
type FileFeedbackStore struct {
	mu       sync.Mutex
	FilePath string
}

func NewFileFeedbackStore(filePath string) *FileFeedbackStore {
	return &FileFeedbackStore{FilePath: filePath}
}

func (s *FileFeedbackStore) Save(ctx context.Context, feedbackID string, fb mealsense.UserFeedback) error {
	line, err := json.Marshal(map[string]any{
		"feedbackId": feedbackID,
		"feedback":   fb,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal feedback record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open feedback file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write feedback record: %w", err)
	}
	return nil
}
