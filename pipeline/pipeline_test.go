package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealsense"
	"mealsense/inference/mock"
)

func newTestPipeline(llm mealsense.InferenceClient) *Pipeline {
	return New(llm, 0, nil, nil, nil)
}

const (
	recognitionJSON = `[
		{"name": "Grilled chicken breast", "confidence": 0.92, "category": "protein", "portionSize": "1 breast", "preparationMethod": "grilled"},
		{"name": "Steamed broccoli", "confidence": 0.85, "category": "vegetable", "portionSize": "1 cup", "preparationMethod": "steamed"},
		{"name": "Possibly quinoa", "confidence": 0.25, "category": "grain"}
	]`

	estimationJSON = `[
		{
			"calories": {"min": 220, "max": 280, "unit": "kcal", "confidence": 0.8},
			"protein": {"min": 40, "max": 48, "unit": "g"},
			"carbs": {"min": 0, "max": 2, "unit": "g"},
			"fat": {"min": 5, "max": 9, "unit": "g"},
			"variabilityFactors": ["portion size"]
		},
		{
			"calories": {"min": 40, "max": 60, "unit": "kcal", "confidence": 0.9},
			"protein": {"min": 3, "max": 5, "unit": "g"},
			"carbs": {"min": 6, "max": 10, "unit": "g"},
			"fat": {"min": 0, "max": 1, "unit": "g"}
		}
	]`
)

// scriptedLLM wires responses for every stage of a successful run.
func scriptedLLM() *mock.LLMClient {
	return mock.NewLLMClient().
		Respond("Identify the food items", recognitionJSON).
		Respond("Estimate nutrition ranges", estimationJSON).
		Respond("Generate reflective questions", `[
			{"question": "How hungry were you before this meal?", "category": "awareness", "relevance": 0.9},
			{"question": "Does this meal fit your protein goal?", "category": "goals", "relevance": 0.8}
		]`).
		Respond("Generate supportive habit nudges", `[
			{"message": "Lean protein with a vegetable is a solid base.", "type": "positive", "actionable": false}
		]`)
}

func TestPipelineAnalyze(t *testing.T) {
	t.Run("full run assembles a complete result", func(t *testing.T) {
		p := newTestPipeline(scriptedLLM())

		analysis, err := p.Analyze(context.Background(), []byte("photo"), "jpeg")
		require.NoError(t, err)
		require.NotNil(t, analysis.Result)

		result := analysis.Result
		assert.True(t, result.IsValid())
		assert.NotEmpty(t, result.ID)
		assert.False(t, result.Timestamp.IsZero())

		// The low-confidence quinoa is set aside, not estimated.
		require.Len(t, result.FoodItems, 2)
		require.Len(t, result.NutritionEstimates, 2)
		require.Len(t, analysis.LowConfidenceItems, 1)
		assert.Equal(t, "Possibly quinoa", analysis.LowConfidenceItems[0].Name)
		assert.Equal(t, []string{"1 food item(s) detected with low confidence. Results may be less accurate."}, result.Warnings)

		assert.Equal(t, mealsense.RangedValue{Min: 260, Max: 340, Unit: "kcal"}, analysis.Totals.Calories)
		assert.InDelta(t, 0.85, analysis.Totals.AverageConfidence, 1e-9)
		assert.InDelta(t, 0.85, result.OverallConfidence, 1e-9)

		require.Len(t, result.ReflectionPrompts, 2)
		require.Len(t, result.HabitNudges, 1)
	})

	t.Run("empty image is rejected before any inference", func(t *testing.T) {
		p := newTestPipeline(mock.NewFailingLLMClient(assert.AnError))

		_, err := p.Analyze(context.Background(), nil, "jpeg")
		require.Error(t, err)
		assert.ErrorIs(t, err, mealsense.ErrInvalidImage)
	})

	t.Run("all low confidence halts before estimation", func(t *testing.T) {
		// Only recognition is scripted; reaching any later stage would fail
		// with a different error than the rejection below.
		llm := mock.NewLLMClient().Respond("Identify the food items", `[
			{"name": "Maybe soup", "confidence": 0.1, "category": "unknown"},
			{"name": "Maybe bread", "confidence": 0.2, "category": "grain"}
		]`)
		p := newTestPipeline(llm)

		_, err := p.Analyze(context.Background(), []byte("photo"), "jpeg")
		require.Error(t, err)

		var rejected *mealsense.NoConfidentItemsError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, []string{
			"2 food item(s) detected with low confidence. Results may be less accurate.",
			"All detected items have low confidence. Consider uploading a clearer image.",
		}, rejected.Warnings)
	})

	t.Run("no items detected also halts", func(t *testing.T) {
		llm := mock.NewLLMClient().Respond("Identify the food items", `[]`)
		p := newTestPipeline(llm)

		_, err := p.Analyze(context.Background(), []byte("photo"), "jpeg")

		var rejected *mealsense.NoConfidentItemsError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, []string{"No food items detected in the image."}, rejected.Warnings)
	})

	t.Run("reflection failure aborts the whole request", func(t *testing.T) {
		broken := mock.NewLLMClient().
			Respond("Identify the food items", recognitionJSON).
			Respond("Estimate nutrition ranges", estimationJSON).
			Respond("Generate supportive habit nudges", `[]`).
			Respond("Generate reflective questions", "sorry, I cannot help with that")
		p := newTestPipeline(broken)

		_, err := p.Analyze(context.Background(), []byte("photo"), "jpeg")
		require.Error(t, err)
		assert.ErrorIs(t, err, mealsense.ErrInference)
	})

	t.Run("custom threshold respected", func(t *testing.T) {
		p := New(scriptedLLM(), 0.9, nil, nil, nil)

		_, err := p.Analyze(context.Background(), []byte("photo"), "jpeg")

		// Only the 0.92 chicken clears 0.9, so estimation returns two entries
		// for one item and the run fails rather than silently continuing.
		require.Error(t, err)
	})
}

func TestPipelineStageLogging(t *testing.T) {
	// The file logger is shared by the concurrent aggregation, reflection and
	// nudge goroutines, so this run doubles as a race check on its buffer.
	var buf bytes.Buffer
	logger := mealsense.NewFileAnalysisLogger(&buf)
	p := New(scriptedLLM(), 0, logger, nil, nil)

	_, err := p.Analyze(context.Background(), []byte("photo"), "jpeg")
	require.NoError(t, err)
	require.NoError(t, logger.Flush())

	var session struct {
		AnalysisSession struct {
			Stages []mealsense.StageLog `json:"stages"`
		} `json:"analysis_session"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &session))

	require.NotEmpty(t, session.AnalysisSession.Stages)
	wantID := session.AnalysisSession.Stages[0].AnalysisID

	stages := make(map[string]int)
	for _, record := range session.AnalysisSession.Stages {
		stages[record.Stage]++
		assert.Equal(t, wantID, record.AnalysisID, "all records belong to the same analysis")
		assert.Empty(t, record.Error)
	}
	assert.Equal(t, map[string]int{
		"recognition":       1,
		"confidence_filter": 1,
		"estimation":        1,
		"aggregation":       1,
		"reflection":        1,
		"nudges":            1,
	}, stages)
}

func TestPipelineEvaluateDetached(t *testing.T) {
	judges := func() *mock.LLMClient {
		return mock.NewLLMClient().
			Respond("Score the factual grounding", `{"score": 0.2}`).
			Respond("Score the clarity", `{"score": 0.2}`).
			Respond("Score the tone safety", `{"score": 0.2}`)
	}

	t.Run("runs after the request context is cancelled", func(t *testing.T) {
		notifier := &mockNotifier{}
		evaluator := NewEvaluator(judges(), notifier, 0.5, "#meal-quality")
		p := New(judges(), 0, nil, nil, evaluator)

		result := evaluationResult()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p.EvaluateDetached(ctx, result)

		require.Eventually(t, func() bool {
			notifier.mu.Lock()
			defer notifier.mu.Unlock()
			return len(notifier.messages) == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Contains(t, notifier.messages[0], result.ID)
	})

	t.Run("nil evaluator and nil result are no-ops", func(t *testing.T) {
		p := newTestPipeline(judges())
		p.EvaluateDetached(context.Background(), evaluationResult())

		withEvaluator := New(judges(), 0, nil, nil, NewEvaluator(judges(), nil, 0.5, "#meal-quality"))
		withEvaluator.EvaluateDetached(context.Background(), nil)
	})
}
