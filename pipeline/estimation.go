package pipeline

import (
	"context"
	"fmt"

	"mealsense"
)

// rawEstimate mirrors the loosely-typed estimation payload before sanitization.
type rawEstimate struct {
	FoodItem           string                 `json:"foodItem"`
	Calories           mealsense.RangedValue  `json:"calories"`
	Protein            mealsense.RangedValue  `json:"protein"`
	Carbs              mealsense.RangedValue  `json:"carbs"`
	Fat                mealsense.RangedValue  `json:"fat"`
	Fiber              *mealsense.RangedValue `json:"fiber"`
	VariabilityFactors []string               `json:"variabilityFactors"`
}

// estimateNutrition produces one sanitized NutritionEstimate per accepted item,
// in input order. The range invariants (min >= 0, max >= min, confidence in
// [0,1]) are enforced unconditionally, whatever the model returned.
func (p *Pipeline) estimateNutrition(ctx context.Context, items []mealsense.FoodItem) ([]mealsense.NutritionEstimate, error) {
	raw, err := p.llm.Generate(ctx, mealsense.InferenceRequest{
		System: estimationSystem,
		Prompt: estimationInstructions(items),
	})
	if err != nil {
		return nil, fmt.Errorf("estimation invoke: %w", err)
	}

	var rawEstimates []rawEstimate
	if err := decodePayload(raw, &rawEstimates); err != nil {
		return nil, fmt.Errorf("estimation: %w", err)
	}
	if len(rawEstimates) != len(items) {
		return nil, fmt.Errorf("%w: estimation returned %d entries for %d items", mealsense.ErrInference, len(rawEstimates), len(items))
	}

	estimates := make([]mealsense.NutritionEstimate, 0, len(items))
	for i, re := range rawEstimates {
		est := mealsense.NutritionEstimate{
			// Name reference always comes from the input item; positional order
			// is the contract, not whatever label the model echoed back.
			FoodItem:           items[i].Name,
			Calories:           sanitizeRange(re.Calories),
			Protein:            sanitizeRange(re.Protein),
			Carbs:              sanitizeRange(re.Carbs),
			Fat:                sanitizeRange(re.Fat),
			VariabilityFactors: re.VariabilityFactors,
		}
		if re.Fiber != nil {
			fiber := sanitizeRange(*re.Fiber)
			est.Fiber = &fiber
		}
		if est.VariabilityFactors == nil {
			est.VariabilityFactors = []string{}
		}
		estimates = append(estimates, est)
	}
	return estimates, nil
}
