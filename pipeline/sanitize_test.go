package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealsense"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no fences",
			input:    `[{"name": "apple"}]`,
			expected: `[{"name": "apple"}]`,
		},
		{
			name:     "plain fences",
			input:    "```\n[{\"name\": \"apple\"}]\n```",
			expected: `[{"name": "apple"}]`,
		},
		{
			name:     "json language tag",
			input:    "```json\n[{\"name\": \"apple\"}]\n```",
			expected: `[{"name": "apple"}]`,
		},
		{
			name:     "surrounding whitespace",
			input:    "  \n```json\n{\"a\": 1}\n```  \n",
			expected: `{"a": 1}`,
		},
		{
			name:     "opening fence only",
			input:    "```json\n{\"a\": 1}",
			expected: `{"a": 1}`,
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripFences(tt.input))
		})
	}
}

func TestDecodePayload(t *testing.T) {
	t.Run("fenced array", func(t *testing.T) {
		var items []rawFoodItem
		err := decodePayload("```json\n[{\"name\": \"apple\", \"confidence\": 0.9}]\n```", &items)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "apple", items[0].Name)
	})

	t.Run("unparseable payload is an inference error", func(t *testing.T) {
		var items []rawFoodItem
		err := decodePayload("I could not find any food in this image.", &items)
		require.Error(t, err)
		assert.ErrorIs(t, err, mealsense.ErrInference)
	})
}

func TestSanitizeRange(t *testing.T) {
	conf := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		input    mealsense.RangedValue
		expected mealsense.RangedValue
	}{
		{
			name:     "valid range untouched",
			input:    mealsense.RangedValue{Min: 10, Max: 20, Unit: "g", Confidence: conf(0.8)},
			expected: mealsense.RangedValue{Min: 10, Max: 20, Unit: "g", Confidence: conf(0.8)},
		},
		{
			name:     "negative min floored",
			input:    mealsense.RangedValue{Min: -5, Max: 20, Unit: "g"},
			expected: mealsense.RangedValue{Min: 0, Max: 20, Unit: "g"},
		},
		{
			name:     "inverted range collapses to min",
			input:    mealsense.RangedValue{Min: 50, Max: 10, Unit: "g"},
			expected: mealsense.RangedValue{Min: 50, Max: 50, Unit: "g"},
		},
		{
			name:     "missing unit defaults to grams",
			input:    mealsense.RangedValue{Min: 1, Max: 2},
			expected: mealsense.RangedValue{Min: 1, Max: 2, Unit: "g"},
		},
		{
			name:     "confidence clamped",
			input:    mealsense.RangedValue{Min: 1, Max: 2, Unit: "g", Confidence: conf(1.7)},
			expected: mealsense.RangedValue{Min: 1, Max: 2, Unit: "g", Confidence: conf(1.0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeRange(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.True(t, got.IsValid())
		})
	}
}
