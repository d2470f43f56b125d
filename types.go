package mealsense

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrInvalidImage indicates the request carried no usable image payload.
	ErrInvalidImage = errors.New("invalid or unparseable image input")

	// ErrInference indicates a non-success or malformed response from the inference service.
	ErrInference = errors.New("inference call failed")

	// ErrMissingAnalysisID indicates a feedback submission without an analysis identifier.
	ErrMissingAnalysisID = errors.New("analysisId is required")
)

// NoConfidentItemsError is the pipeline's terminal-rejection outcome: every
// recognized item fell below the confidence threshold (or none were detected).
// It carries the filter warnings so callers can surface them.
type NoConfidentItemsError struct {
	Warnings []string
}

func (e *NoConfidentItemsError) Error() string {
	return "no food items recognized with sufficient confidence"
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Notifier posts operational alerts (e.g. low evaluation quality) to a channel.
type Notifier interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

// InferenceRequest is a single-shot generative call: system + user instructions
// and an optional image attachment.
type InferenceRequest struct {
	System      string
	Prompt      string
	Image       []byte
	ImageFormat string // jpeg, png, gif or webp when Image is set
}

// InferenceClient is the boundary to the external generative inference service.
// Implementations own retry/timeout policy; the pipeline never retries.
type InferenceClient interface {
	Generate(ctx context.Context, req InferenceRequest) (string, error)
}

// Analyzer runs the full analysis pipeline for one meal photo and, separately,
// kicks off the detached quality evaluation of a finished result.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, format string) (*Analysis, error)
	EvaluateDetached(ctx context.Context, result *AnalysisResult)
}

// FoodItem is a single recognized food with its self-reported confidence.
// Immutable after recognition.
type FoodItem struct {
	Name              string  `json:"name"`
	Confidence        float64 `json:"confidence"`
	Category          string  `json:"category"`
	PortionSize       string  `json:"portionSize,omitempty"`
	PreparationMethod string  `json:"preparationMethod,omitempty"`
}

// RangedValue expresses irreducible uncertainty as a [min, max] interval
// instead of a point value.
type RangedValue struct {
	Min        float64  `json:"min"`
	Max        float64  `json:"max"`
	Unit       string   `json:"unit,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// IsValid reports whether the range invariants hold: min <= max and, when
// present, confidence within [0,1].
func (r RangedValue) IsValid() bool {
	if r.Min > r.Max {
		return false
	}
	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return false
	}
	return true
}

// NutritionEstimate holds per-item ranged macro estimates.
type NutritionEstimate struct {
	FoodItem           string       `json:"foodItem"`
	Calories           RangedValue  `json:"calories"`
	Protein            RangedValue  `json:"protein"`
	Carbs              RangedValue  `json:"carbs"`
	Fat                RangedValue  `json:"fat"`
	Fiber              *RangedValue `json:"fiber,omitempty"`
	VariabilityFactors []string     `json:"variabilityFactors"`
}

// MealTotals are worst-case additive totals across all estimates: independent
// min sums and independent max sums, not a statistical combination.
type MealTotals struct {
	Calories          RangedValue `json:"calories"`
	Protein           RangedValue `json:"protein"`
	Carbs             RangedValue `json:"carbs"`
	Fat               RangedValue `json:"fat"`
	AverageConfidence float64     `json:"averageConfidence"`
}

// Reflection prompt categories.
const (
	ReflectionAwareness    = "awareness"
	ReflectionGoals        = "goals"
	ReflectionHabits       = "habits"
	ReflectionAlternatives = "alternatives"
)

// ReflectionPrompt is an open-ended, non-prescriptive question about the meal.
type ReflectionPrompt struct {
	Question  string  `json:"question"`
	Category  string  `json:"category"`
	Relevance float64 `json:"relevance"`
}

// Habit nudge types.
const (
	NudgePositive   = "positive"
	NudgeNeutral    = "neutral"
	NudgeSuggestion = "suggestion"
)

// HabitNudge is a short supportive message; never prescriptive.
type HabitNudge struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	Actionable  bool   `json:"actionable"`
	RelatedGoal string `json:"relatedGoal,omitempty"`
}

// AnalysisResult is the assembled, immutable output of one pipeline run.
type AnalysisResult struct {
	ID                 string              `json:"id"`
	Timestamp          time.Time           `json:"timestamp"`
	FoodItems          []FoodItem          `json:"foodItems"`
	NutritionEstimates []NutritionEstimate `json:"nutritionEstimates"`
	ReflectionPrompts  []ReflectionPrompt  `json:"reflectionPrompts"`
	HabitNudges        []HabitNudge        `json:"habitNudges"`
	OverallConfidence  float64             `json:"overallConfidence"`
	Warnings           []string            `json:"warnings,omitempty"`
}

// IsValid checks the structural invariants of an assembled result.
func (a *AnalysisResult) IsValid() bool {
	if a.ID == "" || len(a.FoodItems) == 0 {
		return false
	}
	if len(a.NutritionEstimates) != len(a.FoodItems) {
		return false
	}
	if len(a.ReflectionPrompts) > 5 || len(a.HabitNudges) > 3 {
		return false
	}
	return true
}

// Analysis is the caller-facing bundle for one request: the result plus meal
// totals and any items the confidence filter set aside.
type Analysis struct {
	Result             *AnalysisResult `json:"analysis"`
	Totals             MealTotals      `json:"totals"`
	LowConfidenceItems []FoodItem      `json:"lowConfidenceItems,omitempty"`
}

// EvaluationMetrics scores a finished result. Produced asynchronously; its
// lifecycle is independent of the AnalysisResult it describes.
type EvaluationMetrics struct {
	HallucinationScore    float64 `json:"hallucinationScore"`
	ClarityScore          float64 `json:"clarityScore"`
	ToneScore             float64 `json:"toneScore"`
	ConfidenceCalibration float64 `json:"confidenceCalibration"`
	OverallQuality        float64 `json:"overallQuality"`
}

// UserFeedback is a correction submitted against a prior analysis. The
// analysisId is an opaque reference; no existence check is performed here.
type UserFeedback struct {
	AnalysisID        string    `json:"analysisId"`
	CorrectedFoods    []string  `json:"correctedFoods,omitempty"`
	CorrectedPortions []string  `json:"correctedPortions,omitempty"`
	SatisfactionScore *int      `json:"satisfactionScore,omitempty"`
	Comments          string    `json:"comments,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}
