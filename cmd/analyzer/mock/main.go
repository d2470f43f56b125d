package main

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/joeshaw/envdecode"
	"go.opentelemetry.io/otel"

	"mealsense"
	"mealsense/inference/mock"
	"mealsense/notify"
	"mealsense/pipeline"
)

// Runs the full analysis pipeline against a scripted LLM so the stage wiring
// can be exercised without Bedrock credentials or a real meal photo.
func main() {
	ctx := context.Background()

	var pipelineConfig mealsense.PipelineConfig
	if err := envdecode.Decode(&pipelineConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	llm := mock.NewLLMClient().
		Respond("Identify the food items", `[
			{"name": "Grilled chicken breast", "confidence": 0.92, "category": "protein", "portionSize": "1 breast", "preparationMethod": "grilled"},
			{"name": "Steamed broccoli", "confidence": 0.85, "category": "vegetable", "portionSize": "1 cup", "preparationMethod": "steamed"},
			{"name": "Possibly quinoa", "confidence": 0.25, "category": "grain", "portionSize": "unknown", "preparationMethod": "unknown"}
		]`).
		Respond("Estimate nutrition ranges", `[
			{
				"calories": {"min": 220, "max": 280, "unit": "kcal", "confidence": 0.8},
				"protein": {"min": 40, "max": 48, "unit": "g", "confidence": 0.85},
				"carbs": {"min": 0, "max": 2, "unit": "g", "confidence": 0.9},
				"fat": {"min": 5, "max": 9, "unit": "g", "confidence": 0.7},
				"fiber": {"min": 0, "max": 0, "unit": "g", "confidence": 0.9},
				"variabilityFactors": ["portion size", "cooking oil"]
			},
			{
				"calories": {"min": 40, "max": 60, "unit": "kcal", "confidence": 0.85},
				"protein": {"min": 3, "max": 5, "unit": "g", "confidence": 0.8},
				"carbs": {"min": 6, "max": 10, "unit": "g", "confidence": 0.8},
				"fat": {"min": 0, "max": 1, "unit": "g", "confidence": 0.9},
				"fiber": {"min": 3, "max": 5, "unit": "g", "confidence": 0.85},
				"variabilityFactors": ["serving size"]
			}
		]`).
		Respond("Generate reflective questions", `[
			{"question": "How hungry were you before this meal?", "category": "awareness", "relevance": 0.9},
			{"question": "Does this meal line up with your protein goal for the day?", "category": "goals", "relevance": 0.8}
		]`).
		Respond("Generate supportive habit nudges", `[
			{"message": "Lean protein with a green vegetable is a solid base. Consider adding a whole grain for staying power.", "type": "suggestion", "actionable": true, "relatedGoal": "balanced meals"}
		]`).
		Respond("Score the factual grounding", `{"score": 0.35, "reasoning": "Portion estimates are loosely grounded."}`).
		Respond("Score the clarity", `{"score": 0.4, "reasoning": "Ranges are wide."}`).
		Respond("Score the tone safety", `{"score": 0.45, "reasoning": "Neutral and non-prescriptive."}`)

	// Stand-in webhook so the low-quality alert path runs end to end.
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := new(bytes.Buffer)
		body.ReadFrom(r.Body) // nolint: errcheck
		slog.Info("Received alert",
			"method", r.Method,
			"path", r.URL.Path,
			"body", body.String(),
		)
		w.WriteHeader(http.StatusOK)
	}))
	defer testServer.Close()

	notifier := notify.NewClient(testServer.URL, http.DefaultClient)
	evaluator := pipeline.NewEvaluator(llm, notifier, pipelineConfig.QualityAlertThreshold, pipelineConfig.QualityAlertChannel)

	p := pipeline.New(
		llm,
		pipelineConfig.ConfidenceThreshold,
		mealsense.NewStdoutAnalysisLogger(),
		otel.Tracer(mealsense.TracerNameMock),
		evaluator,
	)

	analysis, err := p.Analyze(ctx, []byte("not a real meal photo"), "jpeg")
	if err != nil {
		slog.Error("FAILURE: Analysis failed", "error", err)
		return
	}
	mealsense.Dump(analysis)

	// Evaluation runs inline here so the process does not exit before the
	// scripted judges finish.
	metrics, err := evaluator.Evaluate(ctx, analysis.Result)
	if err != nil {
		slog.Error("FAILURE: Evaluation failed", "error", err)
		return
	}
	mealsense.Dump(metrics)
}
