package pipeline

import (
	"context"
	"fmt"
	"strings"

	"mealsense"
)

const (
	maxHabitNudges      = 3
	varietyScoreTrigger = 0.8
	varietyScoreStep    = 0.2
)

var nudgeTypes = map[string]bool{
	mealsense.NudgePositive:   true,
	mealsense.NudgeNeutral:    true,
	mealsense.NudgeSuggestion: true,
}

type rawNudge struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	Actionable  bool   `json:"actionable"`
	RelatedGoal string `json:"relatedGoal"`
}

// varietyScore is a deterministic heuristic: unique food categories x 0.2,
// capped at 1.0.
func varietyScore(items []mealsense.FoodItem) float64 {
	categories := make(map[string]struct{})
	for _, item := range items {
		if c := strings.ToLower(strings.TrimSpace(item.Category)); c != "" {
			categories[c] = struct{}{}
		}
	}
	score := float64(len(categories)) * varietyScoreStep
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// reinforcementNudge emits one fixed positive nudge when the meal shows high
// category variety, or when it pairs a vegetable with a fruit. Purely
// rule-based; no generative call involved.
func reinforcementNudge(items []mealsense.FoodItem) *mealsense.HabitNudge {
	var hasVegetable, hasFruit bool
	for _, item := range items {
		switch strings.ToLower(strings.TrimSpace(item.Category)) {
		case "vegetable":
			hasVegetable = true
		case "fruit":
			hasFruit = true
		}
	}

	if varietyScore(items) >= varietyScoreTrigger || (hasVegetable && hasFruit) {
		return &mealsense.HabitNudge{
			Message:    "Nice variety on this plate. Mixing different food groups is a habit worth keeping.",
			Type:       mealsense.NudgePositive,
			Actionable: false,
		}
	}
	return nil
}

// generateNudges merges two independent producers into one ordered list: the
// deterministic reinforcement nudge (when triggered) first, then generative
// nudges, with no deduplication between them. The merged list is capped at 3.
func (p *Pipeline) generateNudges(ctx context.Context, items []mealsense.FoodItem, estimates []mealsense.NutritionEstimate) ([]mealsense.HabitNudge, error) {
	var nudges []mealsense.HabitNudge
	if det := reinforcementNudge(items); det != nil {
		nudges = append(nudges, *det)
	}

	raw, err := p.llm.Generate(ctx, mealsense.InferenceRequest{
		System: coachSystem,
		Prompt: nudgeInstructions(items, estimates),
	})
	if err != nil {
		return nil, fmt.Errorf("nudge invoke: %w", err)
	}

	var rawNudges []rawNudge
	if err := decodePayload(raw, &rawNudges); err != nil {
		return nil, fmt.Errorf("nudge: %w", err)
	}
	if len(rawNudges) > maxHabitNudges {
		rawNudges = rawNudges[:maxHabitNudges]
	}

	for _, rn := range rawNudges {
		if len(nudges) >= maxHabitNudges {
			break
		}
		nudgeType := strings.ToLower(strings.TrimSpace(rn.Type))
		if !nudgeTypes[nudgeType] {
			nudgeType = mealsense.NudgeNeutral
		}
		nudges = append(nudges, mealsense.HabitNudge{
			Message:     rn.Message,
			Type:        nudgeType,
			Actionable:  rn.Actionable,
			RelatedGoal: rn.RelatedGoal,
		})
	}
	return nudges, nil
}
