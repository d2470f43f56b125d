package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mealsense"
)

func TestFilterByConfidence(t *testing.T) {
	items := []mealsense.FoodItem{
		{Name: "Grilled chicken breast", Confidence: 0.9, Category: "protein"},
		{Name: "Possibly rice", Confidence: 0.2, Category: "grain"},
		{Name: "Steamed broccoli", Confidence: 0.75, Category: "vegetable"},
	}

	t.Run("splits at threshold", func(t *testing.T) {
		out := filterByConfidence(items, 0.3)

		assert.Equal(t, []mealsense.FoodItem{items[0], items[2]}, out.Recognized)
		assert.Equal(t, []mealsense.FoodItem{items[1]}, out.LowConfidence)
		assert.Equal(t, []string{"1 food item(s) detected with low confidence. Results may be less accurate."}, out.Warnings)
	})

	t.Run("boundary confidence is accepted", func(t *testing.T) {
		out := filterByConfidence([]mealsense.FoodItem{{Name: "Toast", Confidence: 0.3}}, 0.3)

		assert.Len(t, out.Recognized, 1)
		assert.Empty(t, out.LowConfidence)
		assert.Empty(t, out.Warnings)
	})

	t.Run("no items detected", func(t *testing.T) {
		out := filterByConfidence(nil, 0.3)

		assert.Empty(t, out.Recognized)
		assert.Empty(t, out.LowConfidence)
		assert.Equal(t, []string{"No food items detected in the image."}, out.Warnings)
	})

	t.Run("all items low confidence", func(t *testing.T) {
		low := []mealsense.FoodItem{
			{Name: "Maybe soup", Confidence: 0.1},
			{Name: "Maybe bread", Confidence: 0.25},
		}
		out := filterByConfidence(low, 0.3)

		assert.Empty(t, out.Recognized)
		assert.Equal(t, low, out.LowConfidence)
		assert.Equal(t, []string{
			"2 food item(s) detected with low confidence. Results may be less accurate.",
			"All detected items have low confidence. Consider uploading a clearer image.",
		}, out.Warnings)
	})

	t.Run("idempotent on accepted items", func(t *testing.T) {
		first := filterByConfidence(items, 0.3)
		second := filterByConfidence(first.Recognized, 0.3)

		assert.Equal(t, first.Recognized, second.Recognized)
		assert.Empty(t, second.LowConfidence)
	})
}
