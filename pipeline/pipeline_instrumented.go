package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"mealsense"
)

// InstrumentedPipeline wraps a Pipeline with request-level metrics. Tracing
// already lives on the inner pipeline; this layer only adds meters.
type InstrumentedPipeline struct {
	inner *Pipeline
	meter metric.Meter
}

// NewInstrumented wraps an existing pipeline with the given meter.
func NewInstrumented(inner *Pipeline, meter metric.Meter) *InstrumentedPipeline {
	return &InstrumentedPipeline{inner: inner, meter: meter}
}

// Analyze delegates to the wrapped pipeline and records outcome counters,
// duration, and result-shape gauges.
func (ip *InstrumentedPipeline) Analyze(ctx context.Context, image []byte, format string) (*mealsense.Analysis, error) {
	analysesCounter, _ := ip.meter.Int64Counter("analyses_total",
		metric.WithDescription("Total number of analysis requests started"))
	analysesCompletedCounter, _ := ip.meter.Int64Counter("analyses_completed_total",
		metric.WithDescription("Total number of analyses completed successfully"))
	analysesRejectedCounter, _ := ip.meter.Int64Counter("analyses_rejected_total",
		metric.WithDescription("Total number of analyses rejected for lack of confident items"))
	analysesFailedCounter, _ := ip.meter.Int64Counter("analyses_failed_total",
		metric.WithDescription("Total number of analyses that failed at some stage"))
	analysisDurationHist, _ := ip.meter.Float64Histogram("analysis_duration_seconds",
		metric.WithDescription("End-to-end duration of the analysis pipeline in seconds"))
	foodItemsGauge, _ := ip.meter.Int64Gauge("food_items_recognized",
		metric.WithDescription("Number of confident food items in the latest analysis"))
	lowConfidenceGauge, _ := ip.meter.Int64Gauge("food_items_low_confidence",
		metric.WithDescription("Number of low-confidence food items in the latest analysis"))
	overallConfidenceGauge, _ := ip.meter.Float64Gauge("analysis_overall_confidence",
		metric.WithDescription("Overall confidence of the latest analysis"))

	analysesCounter.Add(ctx, 1)
	start := time.Now()

	analysis, err := ip.inner.Analyze(ctx, image, format)
	analysisDurationHist.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		var rejected *mealsense.NoConfidentItemsError
		switch {
		case errors.As(err, &rejected):
			analysesRejectedCounter.Add(ctx, 1)
		case errors.Is(err, mealsense.ErrInvalidImage):
			analysesFailedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("failure", "invalid_image")))
		default:
			analysesFailedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("failure", "stage_error")))
		}
		return nil, err
	}

	analysesCompletedCounter.Add(ctx, 1)
	foodItemsGauge.Record(ctx, int64(len(analysis.Result.FoodItems)))
	lowConfidenceGauge.Record(ctx, int64(len(analysis.LowConfidenceItems)))
	overallConfidenceGauge.Record(ctx, analysis.Result.OverallConfidence)
	return analysis, nil
}

// EvaluateDetached counts evaluation starts and delegates to the wrapped
// pipeline; the evaluation itself stays fire-and-forget.
func (ip *InstrumentedPipeline) EvaluateDetached(ctx context.Context, result *mealsense.AnalysisResult) {
	evaluationsCounter, _ := ip.meter.Int64Counter("evaluations_started_total",
		metric.WithDescription("Total number of detached evaluations started"))
	evaluationsCounter.Add(ctx, 1)
	ip.inner.EvaluateDetached(ctx, result)
}
