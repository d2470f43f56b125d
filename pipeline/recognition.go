package pipeline

import (
	"context"
	"fmt"

	"mealsense"
)

// rawFoodItem mirrors the loosely-typed recognition payload before sanitization.
type rawFoodItem struct {
	Name              string   `json:"name"`
	Confidence        *float64 `json:"confidence"`
	Category          string   `json:"category"`
	PortionSize       string   `json:"portionSize"`
	PreparationMethod string   `json:"preparationMethod"`
}

// recognizeFoods turns decoded image bytes into candidate food items. Every
// item is kept: a missing confidence becomes 0 and the confidence filter
// decides what to drop, not this stage.
func (p *Pipeline) recognizeFoods(ctx context.Context, image []byte, format string) ([]mealsense.FoodItem, error) {
	raw, err := p.llm.Generate(ctx, mealsense.InferenceRequest{
		System:      recognitionSystem,
		Prompt:      recognitionInstructions(),
		Image:       image,
		ImageFormat: format,
	})
	if err != nil {
		return nil, fmt.Errorf("recognition invoke: %w", err)
	}

	var rawItems []rawFoodItem
	if err := decodePayload(raw, &rawItems); err != nil {
		return nil, fmt.Errorf("recognition: %w", err)
	}

	items := make([]mealsense.FoodItem, 0, len(rawItems))
	for _, ri := range rawItems {
		item := mealsense.FoodItem{
			Name:              ri.Name,
			Category:          ri.Category,
			PortionSize:       ri.PortionSize,
			PreparationMethod: ri.PreparationMethod,
		}
		if item.Name == "" {
			item.Name = "Unknown food"
		}
		if item.Category == "" {
			item.Category = "unknown"
		}
		if ri.Confidence != nil {
			item.Confidence = clamp01(*ri.Confidence)
		}
		items = append(items, item)
	}
	return items, nil
}
