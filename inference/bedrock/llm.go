package bedrock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"mealsense"
)

const (
	// defaultModelID is the default model ID for Bedrock Claude.
	// It's an inference profile ID or ARN, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// Controls the maximum number of tokens the model can generate in one response.
	// 1k is a good balance for cost + safety. Raise it (e.g. 2048-4096) when expecting longer responses.
	defaultMaxTokens = 1024

	// Low temperature keeps outputs more deterministic and consistent, which is better for schema-constrained JSON.
	defaultTemperature = 0.2

	// Low top_p keeps outputs more focused and less random, which is better for schema-constrained JSON.
	defaultTopP = 0.9
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type LLMOptions struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// LLMClient implements mealsense.InferenceClient over the Bedrock Converse
// API, including image content blocks for vision-capable models.
type LLMClient struct {
	brc  bedrockRuntimeClient
	opts LLMOptions
}

func NewLLMClient(brc bedrockRuntimeClient, opts LLMOptions) *LLMClient {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	return &LLMClient{
		brc:  brc,
		opts: opts,
	}
}

// Generate performs one single-shot Converse call and returns the assistant
// text. No retries here: retry/timeout policy belongs to the AWS SDK config.
func (c *LLMClient) Generate(ctx context.Context, req mealsense.InferenceRequest) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "prompt_len", len(req.Prompt), "image_bytes", len(req.Image))

	var sys []types.SystemContentBlock
	if req.System != "" {
		sys = append(sys, &types.SystemContentBlockMemberText{Value: req.System})
	}

	var content []types.ContentBlock
	if len(req.Image) > 0 {
		format, err := imageFormat(req.ImageFormat)
		if err != nil {
			return "", err
		}
		content = append(content, &types.ContentBlockMemberImage{
			Value: types.ImageBlock{
				Format: format,
				Source: &types.ImageSourceMemberBytes{Value: req.Image},
			},
		})
		slog.Info("LLM_CLIENT: Attached image", "format", format, "bytes", len(req.Image))
	}
	content = append(content, &types.ContentBlockMemberText{Value: req.Prompt})

	in := &bedrockruntime.ConverseInput{
		ModelId: &c.opts.ModelID,
		System:  sys,
		Messages: []types.Message{
			{Role: types.ConversationRoleUser, Content: content},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.opts.MaxTokens),
			Temperature: aws.Float32(c.opts.Temperature),
			TopP:        aws.Float32(c.opts.TopP),
		},
	}

	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("LLM_CLIENT: Bedrock Claude invoke failed", "error", err, "model_id", c.opts.ModelID)
		return "", err
	}

	slog.Info("LLM_CLIENT: Bedrock Claude invoke succeeded",
		"stop_reason", out.StopReason,
		"latency_ms", aws.ToInt64(out.Metrics.LatencyMs),
		"input_tokens", aws.ToInt32(out.Usage.InputTokens),
		"output_tokens", aws.ToInt32(out.Usage.OutputTokens),
	)

	switch out.StopReason {
	case "end_turn", "stop_sequence":
		text := textFromOutput(out)
		if text == "" {
			return "", fmt.Errorf("model returned no text content")
		}
		return text, nil

	case "max_tokens":
		slog.Warn("LLM_CLIENT: Model hit MaxTokens limit; consider increasing MaxTokens or chunking")
		return "", fmt.Errorf("model hit MaxTokens limit; consider increasing MaxTokens or chunking")

	case "safety", "content_filtered":
		slog.Warn("LLM_CLIENT: Model response blocked by Bedrock safety filters")
		return "", fmt.Errorf("model response blocked by Bedrock safety filters")

	default:
		// Fallback if the model didn't specify a stop reason
		text := textFromOutput(out)
		if text == "" {
			return "", fmt.Errorf("unexpected stop reason %q with no text content", out.StopReason)
		}
		return text, nil
	}
}

// imageFormat maps a sniffed format name to the Converse image format enum.
func imageFormat(name string) (types.ImageFormat, error) {
	switch strings.ToLower(name) {
	case "jpeg", "jpg":
		return types.ImageFormatJpeg, nil
	case "png":
		return types.ImageFormatPng, nil
	case "gif":
		return types.ImageFormatGif, nil
	case "webp":
		return types.ImageFormatWebp, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", name)
	}
}

// textFromOutput returns assistant text optimized for pipeline use:
// 1) If any text block looks like a single JSON document, return the last such block.
// 2) Else, if there's only one text block, return it.
// 3) Else, join all text blocks with '\n'.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil || len(msg.Value.Content) == 0 {
		return ""
	}

	texts := make([]string, 0, len(msg.Value.Content))
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}
	if len(texts) == 0 {
		return ""
	}

	// Prefer a single JSON document if present (typical for schema-constrained stage output)
	for i := len(texts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(texts[i])
		if len(s) > 1 && (s[0] == '{' && s[len(s)-1] == '}' || s[0] == '[' && s[len(s)-1] == ']') {
			return s
		}
	}

	if len(texts) == 1 {
		return texts[0]
	}

	return strings.Join(texts, "\n")
}
