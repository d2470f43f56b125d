package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"mealsense"
)

// neutralScore is the degraded value for a judge whose call failed; it keeps
// the remaining metrics usable instead of aborting the whole evaluation.
const neutralScore = 0.5

// Evaluator scores finished analyses on factual grounding, clarity and tone
// safety. It always runs detached from the request path that produced the
// result; see Pipeline.EvaluateDetached.
type Evaluator struct {
	llm            mealsense.InferenceClient
	notifier       mealsense.Notifier
	alertThreshold float64
	alertChannel   string
}

// NewEvaluator initializes an evaluator. notifier may be nil, in which case
// low-quality alerts are skipped.
func NewEvaluator(llm mealsense.InferenceClient, notifier mealsense.Notifier, alertThreshold float64, alertChannel string) *Evaluator {
	return &Evaluator{
		llm:            llm,
		notifier:       notifier,
		alertThreshold: alertThreshold,
		alertChannel:   alertChannel,
	}
}

// Evaluate runs the three judge calls in parallel and combines their scores.
// An individual judge failure degrades that metric to 0.5; only faults before
// any judging starts (e.g. result serialization) fail the evaluation itself.
func (e *Evaluator) Evaluate(ctx context.Context, result *mealsense.AnalysisResult) (mealsense.EvaluationMetrics, error) {
	var metrics mealsense.EvaluationMetrics

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return metrics, fmt.Errorf("encode result for evaluation: %w", err)
	}
	resultJSON := string(payload)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		metrics.HallucinationScore = e.judge(gctx, "hallucination", hallucinationInstructions(resultJSON))
		return nil
	})
	g.Go(func() error {
		metrics.ClarityScore = e.judge(gctx, "clarity", clarityInstructions(resultJSON))
		return nil
	})
	g.Go(func() error {
		metrics.ToneScore = e.judge(gctx, "tone", toneInstructions(resultJSON))
		return nil
	})
	g.Wait() // nolint: errcheck // judges never return errors; they degrade

	metrics.OverallQuality = (metrics.HallucinationScore + metrics.ClarityScore + metrics.ToneScore) / 3
	// Agreement between the pipeline's self-reported confidence and the judged
	// groundedness of its claims.
	metrics.ConfidenceCalibration = clamp01(1 - math.Abs(result.OverallConfidence-metrics.HallucinationScore))

	e.maybeAlert(ctx, result.ID, metrics)
	return metrics, nil
}

// judge runs one scoring call and returns its clamped score, degrading to the
// neutral 0.5 on any failure.
func (e *Evaluator) judge(ctx context.Context, name, instructions string) float64 {
	raw, err := e.llm.Generate(ctx, mealsense.InferenceRequest{
		System: judgeSystem,
		Prompt: instructions,
	})
	if err != nil {
		slog.Warn("EVALUATOR: Judge call failed; degrading to neutral", "judge", name, "error", err)
		return neutralScore
	}

	var verdict struct {
		Score *float64 `json:"score"`
	}
	if err := decodePayload(raw, &verdict); err != nil || verdict.Score == nil {
		slog.Warn("EVALUATOR: Judge returned unusable verdict; degrading to neutral", "judge", name, "error", err)
		return neutralScore
	}
	return clamp01(*verdict.Score)
}

func (e *Evaluator) maybeAlert(ctx context.Context, analysisID string, metrics mealsense.EvaluationMetrics) {
	if e.notifier == nil || metrics.OverallQuality >= e.alertThreshold {
		return
	}
	msg := fmt.Sprintf("Low analysis quality for %s: overall=%.2f (hallucination=%.2f clarity=%.2f tone=%.2f)",
		analysisID, metrics.OverallQuality, metrics.HallucinationScore, metrics.ClarityScore, metrics.ToneScore)
	if err := e.notifier.PostMessage(ctx, e.alertChannel, msg); err != nil {
		slog.Error("EVALUATOR: Failed to post quality alert", "analysis_id", analysisID, "error", err)
	}
}
