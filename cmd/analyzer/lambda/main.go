package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"

	"mealsense"
	"mealsense/feedback"
	"mealsense/inference/bedrock"
	"mealsense/pipeline"
	"mealsense/server"
	"mealsense/storage"
)

// Params is the Lambda event: either an image to analyze or a feedback
// submission to record.
type Params struct {
	Image    string                  `json:"image,omitempty"`
	Feedback *mealsense.UserFeedback `json:"feedback,omitempty"`
}

type Results struct {
	Success    bool                `json:"success"`
	Analysis   *mealsense.Analysis `json:"analysis,omitempty"`
	FeedbackID string              `json:"feedbackId,omitempty"`
	Warnings   []string            `json:"warnings,omitempty"`
}

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
		var modelConfig mealsense.ModelConfig
		if err := envdecode.Decode(&modelConfig); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}

		var pipelineConfig mealsense.PipelineConfig
		if err := envdecode.Decode(&pipelineConfig); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}

		if params.Feedback != nil {
			return recordFeedback(ctx, *params.Feedback)
		}

		brc, err := newBedrockRuntimeClient(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to create Bedrock client", "error", err)
			return Results{}, err
		}

		llm := bedrock.NewLLMClient(brc, bedrock.LLMOptions{
			ModelID:     modelConfig.ModelID,
			MaxTokens:   modelConfig.MaxTokens,
			Temperature: modelConfig.Temperature,
			TopP:        modelConfig.TopP,
		})

		tracerProvider, _, otelShutdown, err := mealsense.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return Results{}, err
		}
		defer func() {
			if err := otelShutdown(ctx); err != nil {
				slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
			}
		}()

		evaluator := pipeline.NewEvaluator(llm, nil, pipelineConfig.QualityAlertThreshold, pipelineConfig.QualityAlertChannel)
		p := pipeline.New(
			llm,
			pipelineConfig.ConfidenceThreshold,
			mealsense.NewStdoutAnalysisLogger(),
			tracerProvider.Tracer(mealsense.TracerNamePipeline),
			evaluator,
		)

		image, format, err := server.DecodeImage(params.Image, 0)
		if err != nil {
			return Results{}, err
		}

		analysis, err := p.Analyze(ctx, image, format)
		if err != nil {
			var rejected *mealsense.NoConfidentItemsError
			if errors.As(err, &rejected) {
				return Results{Warnings: rejected.Warnings}, err
			}
			slog.Error("RESULT: Analysis failed", "error", err)
			return Results{}, err
		}

		// Lambda freezes the execution environment as soon as the handler
		// returns, which would strand a detached goroutine. Evaluation runs
		// inline here; its failure is still contained and logged only.
		if metrics, err := evaluator.Evaluate(ctx, analysis.Result); err != nil {
			slog.Error("RESULT: Evaluation failed", "analysis_id", analysis.Result.ID, "error", err)
		} else {
			slog.Info("RESULT: Evaluation complete",
				"analysis_id", analysis.Result.ID,
				"overall_quality", metrics.OverallQuality,
			)
		}
		return Results{Success: true, Analysis: analysis}, nil
	}

	lambda.Start(fn)
}

func recordFeedback(ctx context.Context, fb mealsense.UserFeedback) (Results, error) {
	bucket := os.Getenv("FEEDBACK_S3_BUCKET")
	prefix := os.Getenv("FEEDBACK_S3_PREFIX")
	if bucket == "" {
		return Results{}, fmt.Errorf("missing S3 config: FEEDBACK_S3_BUCKET must be set")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return Results{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	store := storage.NewS3FeedbackStore(s3.NewFromConfig(awsCfg), bucket, prefix)
	feedbackID, err := feedback.NewRecorder(store).Record(ctx, fb)
	if err != nil {
		return Results{}, err
	}
	return Results{Success: true, FeedbackID: feedbackID}, nil
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}
