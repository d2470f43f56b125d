package pipeline

import "mealsense"

// aggregateEstimates combines per-item ranges into meal totals by summing the
// independent min values and independent max values of each macro. This is a
// worst-case additive bound; uncertainties are not statistically combined.
// AverageConfidence is the arithmetic mean of the calorie confidences, 0 for
// an empty list. Pure function.
func aggregateEstimates(estimates []mealsense.NutritionEstimate) mealsense.MealTotals {
	totals := mealsense.MealTotals{
		Calories: mealsense.RangedValue{Unit: "kcal"},
		Protein:  mealsense.RangedValue{Unit: "g"},
		Carbs:    mealsense.RangedValue{Unit: "g"},
		Fat:      mealsense.RangedValue{Unit: "g"},
	}

	var confidenceSum float64
	for _, est := range estimates {
		totals.Calories.Min += est.Calories.Min
		totals.Calories.Max += est.Calories.Max
		totals.Protein.Min += est.Protein.Min
		totals.Protein.Max += est.Protein.Max
		totals.Carbs.Min += est.Carbs.Min
		totals.Carbs.Max += est.Carbs.Max
		totals.Fat.Min += est.Fat.Min
		totals.Fat.Max += est.Fat.Max

		if est.Calories.Confidence != nil {
			confidenceSum += *est.Calories.Confidence
		}
	}

	if len(estimates) > 0 {
		totals.AverageConfidence = confidenceSum / float64(len(estimates))
	}
	return totals
}
