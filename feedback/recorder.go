package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"mealsense"
	"mealsense/storage"
)

// Recorder accepts user corrections keyed by an analysis identifier. The id is
// treated as opaque: no lookup against stored results happens here, so
// feedback for an unknown or expired analysis is still accepted.
type Recorder struct {
	store storage.FeedbackStore
}

func NewRecorder(store storage.FeedbackStore) *Recorder {
	return &Recorder{store: store}
}

// Record validates and persists one feedback submission, returning the new
// feedback id. The only validation failure is a missing analysisId.
func (r *Recorder) Record(ctx context.Context, fb mealsense.UserFeedback) (string, error) {
	if strings.TrimSpace(fb.AnalysisID) == "" {
		return "", mealsense.ErrMissingAnalysisID
	}

	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now().UTC()
	}

	feedbackID := uuid.NewString()
	if err := r.store.Save(ctx, feedbackID, fb); err != nil {
		return "", fmt.Errorf("failed to save feedback: %w", err)
	}

	slog.Info("FEEDBACK: Recorded submission",
		"feedback_id", feedbackID,
		"analysis_id", fb.AnalysisID,
		"corrected_foods", len(fb.CorrectedFoods),
		"corrected_portions", len(fb.CorrectedPortions),
		"has_satisfaction_score", fb.SatisfactionScore != nil,
	)
	return feedbackID, nil
}
