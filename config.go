package mealsense

type ModelConfig struct {
	ModelID     string  `env:"MODEL_ID,required"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=1024"`
	Temperature float32 `env:"TEMPERATURE,default=0.2"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type PipelineConfig struct {
	ConfidenceThreshold   float64 `env:"CONFIDENCE_THRESHOLD,default=0.3"`
	QualityAlertThreshold float64 `env:"QUALITY_ALERT_THRESHOLD,default=0.5"`
	QualityAlertChannel   string  `env:"QUALITY_ALERT_CHANNEL,default=#meal-quality"`
	QualityAlertWebhook   string  `env:"QUALITY_ALERT_WEBHOOK"`
}

type ServerConfig struct {
	ListenAddr       string `env:"LISTEN_ADDR,default=:8080"`
	MaxImageBytes    int64  `env:"MAX_IMAGE_BYTES,default=10485760"`
	FeedbackFilePath string `env:"FEEDBACK_FILE_PATH,default=artifacts/feedback.jsonl"`
}
