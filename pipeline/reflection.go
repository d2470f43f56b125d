package pipeline

import (
	"context"
	"fmt"
	"strings"

	"mealsense"
)

const maxReflectionPrompts = 5

var reflectionCategories = map[string]bool{
	mealsense.ReflectionAwareness:    true,
	mealsense.ReflectionGoals:        true,
	mealsense.ReflectionHabits:       true,
	mealsense.ReflectionAlternatives: true,
}

type rawReflection struct {
	Question  string  `json:"question"`
	Category  string  `json:"category"`
	Relevance float64 `json:"relevance"`
}

// generateReflections asks for 3-5 open-ended questions about the meal. Output
// is capped at 5; an unrecognized category falls back to awareness.
func (p *Pipeline) generateReflections(ctx context.Context, items []mealsense.FoodItem, estimates []mealsense.NutritionEstimate) ([]mealsense.ReflectionPrompt, error) {
	raw, err := p.llm.Generate(ctx, mealsense.InferenceRequest{
		System: coachSystem,
		Prompt: reflectionInstructions(items, estimates),
	})
	if err != nil {
		return nil, fmt.Errorf("reflection invoke: %w", err)
	}

	var rawPrompts []rawReflection
	if err := decodePayload(raw, &rawPrompts); err != nil {
		return nil, fmt.Errorf("reflection: %w", err)
	}

	if len(rawPrompts) > maxReflectionPrompts {
		rawPrompts = rawPrompts[:maxReflectionPrompts]
	}

	prompts := make([]mealsense.ReflectionPrompt, 0, len(rawPrompts))
	for _, rp := range rawPrompts {
		category := strings.ToLower(strings.TrimSpace(rp.Category))
		if !reflectionCategories[category] {
			category = mealsense.ReflectionAwareness
		}
		prompts = append(prompts, mealsense.ReflectionPrompt{
			Question:  rp.Question,
			Category:  category,
			Relevance: clamp01(rp.Relevance),
		})
	}
	return prompts, nil
}
