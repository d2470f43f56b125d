package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joeshaw/envdecode"

	"mealsense"
	"mealsense/feedback"
	"mealsense/inference/bedrock"
	"mealsense/notify"
	"mealsense/pipeline"
	"mealsense/server"
	"mealsense/storage"
)

func main() {
	ctx := context.Background()

	var modelConfig mealsense.ModelConfig
	if err := envdecode.Decode(&modelConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	var pipelineConfig mealsense.PipelineConfig
	if err := envdecode.Decode(&pipelineConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	var serverConfig mealsense.ServerConfig
	if err := envdecode.Decode(&serverConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	tracerProvider, meterProvider, otelShutdown, err := mealsense.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	brc, err := newBedrockRuntimeClient(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to create Bedrock client", "error", err)
		return
	}

	llm := bedrock.NewLLMClient(brc, bedrock.LLMOptions{
		ModelID:     modelConfig.ModelID,
		MaxTokens:   modelConfig.MaxTokens,
		Temperature: modelConfig.Temperature,
		TopP:        modelConfig.TopP,
	})

	var notifier mealsense.Notifier
	if pipelineConfig.QualityAlertWebhook != "" {
		notifier = notify.NewClient(pipelineConfig.QualityAlertWebhook, http.DefaultClient)
		slog.Info("SETUP: Quality alert webhook configured", "channel", pipelineConfig.QualityAlertChannel)
	}

	evaluator := pipeline.NewEvaluator(llm, notifier, pipelineConfig.QualityAlertThreshold, pipelineConfig.QualityAlertChannel)

	logger, cleanup, err := newAnalysisLogger(modelConfig.ModelID)
	if err != nil {
		slog.Error("SETUP: Failed to create analysis logger", "error", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("Failed to flush analysis log", "error", err)
		}
	}()

	tracer := tracerProvider.Tracer(mealsense.TracerNamePipeline)
	p := pipeline.New(llm, pipelineConfig.ConfidenceThreshold, logger, tracer, evaluator)
	instrumented := pipeline.NewInstrumented(p, meterProvider.Meter(mealsense.TracerNamePipeline))

	recorder := feedback.NewRecorder(storage.NewFileFeedbackStore(serverConfig.FeedbackFilePath))

	srv := server.New(instrumented, recorder, serverConfig.MaxImageBytes)

	slog.Info("SETUP: Listening",
		"addr", serverConfig.ListenAddr,
		"model_id", modelConfig.ModelID,
		"confidence_threshold", pipelineConfig.ConfidenceThreshold,
	)
	if err := http.ListenAndServe(serverConfig.ListenAddr, srv.Handler()); err != nil {
		slog.Error("SERVER: Stopped", "error", err)
	}
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

func newAnalysisLogger(modelID string) (mealsense.AnalysisLogger, func() error, error) {
	logFilePath := mealsense.NewAnalysisLogFilePath(modelID)
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, func() error { return err }, err
	}

	logger := mealsense.NewFileAnalysisLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
