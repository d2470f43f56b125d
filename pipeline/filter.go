package pipeline

import (
	"fmt"

	"mealsense"
)

const defaultConfidenceThreshold = 0.3

// filterOutcome partitions recognized items by confidence, preserving the
// original order within each partition.
type filterOutcome struct {
	Recognized    []mealsense.FoodItem
	LowConfidence []mealsense.FoodItem
	Warnings      []string
}

// filterByConfidence splits items at the threshold and computes explanatory
// warnings. An empty Recognized partition is the pipeline's only early-exit
// condition; the caller halts on it.
func filterByConfidence(items []mealsense.FoodItem, threshold float64) filterOutcome {
	var out filterOutcome
	for _, item := range items {
		if item.Confidence >= threshold {
			out.Recognized = append(out.Recognized, item)
		} else {
			out.LowConfidence = append(out.LowConfidence, item)
		}
	}

	if len(items) == 0 {
		out.Warnings = append(out.Warnings, "No food items detected in the image.")
		return out
	}
	if len(out.LowConfidence) > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%d food item(s) detected with low confidence. Results may be less accurate.", len(out.LowConfidence)))
	}
	if len(out.Recognized) == 0 {
		out.Warnings = append(out.Warnings, "All detected items have low confidence. Consider uploading a clearer image.")
	}
	return out
}
