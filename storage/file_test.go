package storage_test

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"

	"mealsense"
	"mealsense/storage"
)

func TestFileFeedbackStore_Save(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "feedback.jsonl")
	store := storage.NewFileFeedbackStore(filePath)

	records := map[string]mealsense.UserFeedback{
		"fb-1": {AnalysisID: "analysis-1", Comments: "Looked about right."},
		"fb-2": {AnalysisID: "analysis-2", CorrectedFoods: []string{"tofu, not chicken"}},
	}
	for id, fb := range records {
		must.NoError(t, store.Save(context.Background(), id, fb))
	}

	f, err := os.Open(filePath)
	must.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		var record struct {
			FeedbackID string                 `json:"feedbackId"`
			Feedback   mealsense.UserFeedback `json:"feedback"`
		}
		must.NoError(t, json.Unmarshal(scanner.Bytes(), &record))

		expected, ok := records[record.FeedbackID]
		must.True(t, ok, "unexpected feedback id %q", record.FeedbackID)
		should.Equal(t, expected.AnalysisID, record.Feedback.AnalysisID)
	}
	must.NoError(t, scanner.Err())
	should.Equal(t, 2, lines)
}

func TestFileFeedbackStore_SaveUnwritablePath(t *testing.T) {
	store := storage.NewFileFeedbackStore(filepath.Join(t.TempDir(), "missing", "feedback.jsonl"))

	err := store.Save(context.Background(), "fb-1", mealsense.UserFeedback{AnalysisID: "analysis-1"})
	must.Error(t, err)
	should.Contains(t, err.Error(), "failed to open feedback file")
}

func TestMemFeedbackStore(t *testing.T) {
	store := storage.NewMemFeedbackStore()

	must.NoError(t, store.Save(context.Background(), "fb-1", mealsense.UserFeedback{AnalysisID: "analysis-1"}))

	saved, ok := store.Get("fb-1")
	must.True(t, ok)
	should.Equal(t, "analysis-1", saved.AnalysisID)

	_, ok = store.Get("fb-2")
	should.False(t, ok)

	should.Error(t, storage.NewMemFeedbackStoreWithError().Save(context.Background(), "fb-1", mealsense.UserFeedback{}))
}
