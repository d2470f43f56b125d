package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealsense"
	"mealsense/inference/mock"
)

func TestEstimateNutrition(t *testing.T) {
	items := []mealsense.FoodItem{
		{Name: "Grilled chicken breast", Confidence: 0.9, Category: "protein"},
		{Name: "Steamed broccoli", Confidence: 0.8, Category: "vegetable"},
	}

	t.Run("one sanitized estimate per item in order", func(t *testing.T) {
		llm := mock.NewLLMClient().Respond("Estimate nutrition ranges", `[
			{
				"foodItem": "wrong label from model",
				"calories": {"min": 220, "max": 280, "unit": "kcal", "confidence": 0.8},
				"protein": {"min": 40, "max": 48, "unit": "g"},
				"carbs": {"min": 0, "max": 2, "unit": "g"},
				"fat": {"min": 5, "max": 9, "unit": "g"},
				"fiber": {"min": 0, "max": 0, "unit": "g"},
				"variabilityFactors": ["portion size"]
			},
			{
				"calories": {"min": 40, "max": 60, "unit": "kcal", "confidence": 0.85},
				"protein": {"min": 3, "max": 5},
				"carbs": {"min": 6, "max": 10, "unit": "g"},
				"fat": {"min": 0, "max": 1, "unit": "g"}
			}
		]`)

		estimates, err := newTestPipeline(llm).estimateNutrition(context.Background(), items)
		require.NoError(t, err)
		require.Len(t, estimates, 2)

		// The item reference comes from the input order, not the model's echo.
		assert.Equal(t, "Grilled chicken breast", estimates[0].FoodItem)
		assert.Equal(t, "Steamed broccoli", estimates[1].FoodItem)

		assert.Equal(t, mealsense.RangedValue{Min: 220, Max: 280, Unit: "kcal", Confidence: estimates[0].Calories.Confidence}, estimates[0].Calories)
		require.NotNil(t, estimates[0].Fiber)

		// Missing unit defaults to grams; absent fiber stays nil; absent
		// variability factors become an empty list.
		assert.Equal(t, "g", estimates[1].Protein.Unit)
		assert.Nil(t, estimates[1].Fiber)
		assert.Equal(t, []string{}, estimates[1].VariabilityFactors)
	})

	t.Run("inverted range collapses", func(t *testing.T) {
		llm := mock.NewLLMClient().Respond("Estimate nutrition ranges", `[
			{
				"calories": {"min": 50, "max": 10, "unit": "kcal"},
				"protein": {"min": -3, "max": 5, "unit": "g"},
				"carbs": {"min": 6, "max": 10, "unit": "g"},
				"fat": {"min": 0, "max": 1, "unit": "g"}
			}
		]`)

		estimates, err := newTestPipeline(llm).estimateNutrition(context.Background(), items[:1])
		require.NoError(t, err)
		require.Len(t, estimates, 1)

		assert.Equal(t, mealsense.RangedValue{Min: 50, Max: 50, Unit: "kcal"}, estimates[0].Calories)
		assert.Equal(t, mealsense.RangedValue{Min: 0, Max: 5, Unit: "g"}, estimates[0].Protein)
	})

	t.Run("count mismatch is an error", func(t *testing.T) {
		llm := mock.NewLLMClient().Respond("Estimate nutrition ranges", `[
			{"calories": {"min": 1, "max": 2, "unit": "kcal"}, "protein": {"min": 0, "max": 0}, "carbs": {"min": 0, "max": 0}, "fat": {"min": 0, "max": 0}}
		]`)

		_, err := newTestPipeline(llm).estimateNutrition(context.Background(), items)
		require.Error(t, err)
		assert.ErrorIs(t, err, mealsense.ErrInference)
		assert.Contains(t, err.Error(), "1 entries for 2 items")
	})

	t.Run("inference failure propagates", func(t *testing.T) {
		llm := mock.NewFailingLLMClient(assert.AnError)

		_, err := newTestPipeline(llm).estimateNutrition(context.Background(), items)
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
	})
}
