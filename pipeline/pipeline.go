package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"mealsense"
)

// Pipeline chains the analysis stages for one meal photo:
// recognition -> confidence filter -> estimation -> aggregation in parallel
// with (reflection in parallel with nudges) -> assembly. Evaluation runs
// detached, after the caller already has its response.
//
// One Pipeline instance serves many requests; it holds no per-request state.
type Pipeline struct {
	llm       mealsense.InferenceClient
	threshold float64
	logger    mealsense.AnalysisLogger
	tracer    trace.Tracer
	evaluator *Evaluator
}

// New initializes a pipeline. A non-positive threshold falls back to the
// default 0.3; a nil logger discards stage records; a nil tracer uses the
// globally registered provider (a no-op when none is registered).
func New(llm mealsense.InferenceClient, threshold float64, logger mealsense.AnalysisLogger, tracer trace.Tracer, evaluator *Evaluator) *Pipeline {
	if threshold <= 0 {
		threshold = defaultConfidenceThreshold
	}
	if logger == nil {
		logger = mealsense.NewNoOpAnalysisLogger()
	}
	if tracer == nil {
		tracer = otel.Tracer(mealsense.TracerNamePipeline)
	}
	return &Pipeline{
		llm:       llm,
		threshold: threshold,
		logger:    logger,
		tracer:    tracer,
		evaluator: evaluator,
	}
}

// Analyze runs the full pipeline for one image. It either returns a complete
// Analysis or an error; a partial result is never returned. The only
// early-exit branch is *mealsense.NoConfidentItemsError when the confidence
// filter leaves nothing to estimate.
func (p *Pipeline) Analyze(ctx context.Context, image []byte, format string) (*mealsense.Analysis, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Analyze")
	defer span.End()

	if len(image) == 0 {
		span.SetStatus(codes.Error, "empty image payload")
		return nil, mealsense.ErrInvalidImage
	}

	analysisID := uuid.NewString()
	span.SetAttributes(attribute.String("analysis.id", analysisID), attribute.Int("image.bytes", len(image)))
	slog.Info("PIPELINE: Starting analysis", "analysis_id", analysisID, "image_bytes", len(image), "format", format)

	// Recognition
	items, err := p.runRecognition(ctx, analysisID, image, format)
	if err != nil {
		span.SetStatus(codes.Error, "recognition failed")
		span.RecordError(err)
		return nil, err
	}

	// Confidence filter
	outcome := p.runFilter(ctx, analysisID, items)
	if len(outcome.Recognized) == 0 {
		slog.Warn("PIPELINE: No confident items; halting", "analysis_id", analysisID, "detected", len(items), "warnings", outcome.Warnings)
		span.SetStatus(codes.Error, "no confident items")
		return nil, &mealsense.NoConfidentItemsError{Warnings: outcome.Warnings}
	}

	// Estimation
	estimates, err := p.runEstimation(ctx, analysisID, outcome.Recognized)
	if err != nil {
		span.SetStatus(codes.Error, "estimation failed")
		span.RecordError(err)
		return nil, err
	}

	// Aggregation runs alongside reflection and nudge generation; the three
	// have no data dependency on each other. All must succeed: a failure in
	// any aborts the whole request.
	var (
		totals      mealsense.MealTotals
		reflections []mealsense.ReflectionPrompt
		nudges      []mealsense.HabitNudge
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		totals = p.runAggregation(gctx, analysisID, estimates)
		return nil
	})
	g.Go(func() error {
		var rerr error
		reflections, rerr = p.runReflection(gctx, analysisID, outcome.Recognized, estimates)
		return rerr
	})
	g.Go(func() error {
		var nerr error
		nudges, nerr = p.runNudges(gctx, analysisID, outcome.Recognized, estimates)
		return nerr
	})
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, "content generation failed")
		span.RecordError(err)
		return nil, err
	}

	result := &mealsense.AnalysisResult{
		ID:                 analysisID,
		Timestamp:          time.Now().UTC(),
		FoodItems:          outcome.Recognized,
		NutritionEstimates: estimates,
		ReflectionPrompts:  reflections,
		HabitNudges:        nudges,
		OverallConfidence:  totals.AverageConfidence,
		Warnings:           outcome.Warnings,
	}

	slog.Info("PIPELINE: Analysis assembled",
		"analysis_id", analysisID,
		"food_items", len(result.FoodItems),
		"reflection_prompts", len(result.ReflectionPrompts),
		"habit_nudges", len(result.HabitNudges),
		"overall_confidence", result.OverallConfidence,
	)

	return &mealsense.Analysis{
		Result:             result,
		Totals:             totals,
		LowConfidenceItems: outcome.LowConfidence,
	}, nil
}

// EvaluateDetached starts the quality evaluation of an assembled result in the
// background. Call it only once the caller's response is ready: it never
// blocks, its context survives request cancellation, and every failure is
// contained and logged here rather than surfaced.
func (p *Pipeline) EvaluateDetached(ctx context.Context, result *mealsense.AnalysisResult) {
	if p.evaluator == nil || result == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("PIPELINE: Evaluation panicked", "analysis_id", result.ID, "panic", r)
			}
		}()

		ctx, span := p.tracer.Start(bg, "Pipeline.Evaluation")
		defer span.End()

		start := time.Now()
		metrics, err := p.evaluator.Evaluate(ctx, result)
		p.logStage(result.ID, "evaluation", start, "", metrics, err)
		if err != nil {
			span.SetStatus(codes.Error, "evaluation failed")
			span.RecordError(err)
			slog.Error("PIPELINE: Evaluation failed", "analysis_id", result.ID, "error", err)
			return
		}

		span.SetAttributes(attribute.Float64("evaluation.overall_quality", metrics.OverallQuality))
		slog.Info("PIPELINE: Evaluation complete",
			"analysis_id", result.ID,
			"hallucination_score", metrics.HallucinationScore,
			"clarity_score", metrics.ClarityScore,
			"tone_score", metrics.ToneScore,
			"overall_quality", metrics.OverallQuality,
		)
	}()
}

func (p *Pipeline) runRecognition(ctx context.Context, analysisID string, image []byte, format string) ([]mealsense.FoodItem, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Recognition")
	defer span.End()

	start := time.Now()
	items, err := p.recognizeFoods(ctx, image, format)
	p.logStage(analysisID, "recognition", start, fmt.Sprintf("%d image bytes (%s)", len(image), format), items, err)
	if err != nil {
		span.SetStatus(codes.Error, "recognition failed")
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("recognition.items", len(items)))
	slog.Info("PIPELINE: Recognition complete", "analysis_id", analysisID, "items", len(items))
	return items, nil
}

func (p *Pipeline) runFilter(ctx context.Context, analysisID string, items []mealsense.FoodItem) filterOutcome {
	_, span := p.tracer.Start(ctx, "Pipeline.ConfidenceFilter")
	defer span.End()

	start := time.Now()
	outcome := filterByConfidence(items, p.threshold)
	p.logStage(analysisID, "confidence_filter", start, fmt.Sprintf("%d items @ threshold %.2f", len(items), p.threshold), outcome, nil)

	span.SetAttributes(
		attribute.Int("filter.recognized", len(outcome.Recognized)),
		attribute.Int("filter.low_confidence", len(outcome.LowConfidence)),
	)
	slog.Info("PIPELINE: Confidence filter applied",
		"analysis_id", analysisID,
		"recognized", len(outcome.Recognized),
		"low_confidence", len(outcome.LowConfidence),
		"threshold", p.threshold,
	)
	return outcome
}

func (p *Pipeline) runEstimation(ctx context.Context, analysisID string, items []mealsense.FoodItem) ([]mealsense.NutritionEstimate, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Estimation")
	defer span.End()

	start := time.Now()
	estimates, err := p.estimateNutrition(ctx, items)
	p.logStage(analysisID, "estimation", start, fmt.Sprintf("%d items", len(items)), estimates, err)
	if err != nil {
		span.SetStatus(codes.Error, "estimation failed")
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("estimation.estimates", len(estimates)))
	slog.Info("PIPELINE: Estimation complete", "analysis_id", analysisID, "estimates", len(estimates))
	return estimates, nil
}

func (p *Pipeline) runAggregation(ctx context.Context, analysisID string, estimates []mealsense.NutritionEstimate) mealsense.MealTotals {
	_, span := p.tracer.Start(ctx, "Pipeline.Aggregation")
	defer span.End()

	start := time.Now()
	totals := aggregateEstimates(estimates)
	p.logStage(analysisID, "aggregation", start, fmt.Sprintf("%d estimates", len(estimates)), totals, nil)

	span.SetAttributes(attribute.Float64("aggregation.average_confidence", totals.AverageConfidence))
	return totals
}

func (p *Pipeline) runReflection(ctx context.Context, analysisID string, items []mealsense.FoodItem, estimates []mealsense.NutritionEstimate) ([]mealsense.ReflectionPrompt, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Reflection")
	defer span.End()

	start := time.Now()
	prompts, err := p.generateReflections(ctx, items, estimates)
	p.logStage(analysisID, "reflection", start, fmt.Sprintf("%d items", len(items)), prompts, err)
	if err != nil {
		span.SetStatus(codes.Error, "reflection failed")
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("reflection.prompts", len(prompts)))
	return prompts, nil
}

func (p *Pipeline) runNudges(ctx context.Context, analysisID string, items []mealsense.FoodItem, estimates []mealsense.NutritionEstimate) ([]mealsense.HabitNudge, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Nudges")
	defer span.End()

	start := time.Now()
	nudges, err := p.generateNudges(ctx, items, estimates)
	p.logStage(analysisID, "nudges", start, fmt.Sprintf("%d items", len(items)), nudges, err)
	if err != nil {
		span.SetStatus(codes.Error, "nudge generation failed")
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("nudges.count", len(nudges)))
	return nudges, nil
}

func (p *Pipeline) logStage(analysisID, stage string, start time.Time, input string, output any, err error) {
	record := mealsense.StageLog{
		AnalysisID: analysisID,
		Stage:      stage,
		Timestamp:  start,
		Input:      input,
		Output:     output,
		Duration:   time.Since(start),
	}
	if err != nil {
		record.Error = err.Error()
	}
	if lerr := p.logger.LogStage(record); lerr != nil {
		slog.Error("PIPELINE: Failed to log stage", "stage", stage, "error", lerr)
	}
}
