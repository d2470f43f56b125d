package mealsense

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// AnalysisLogger is the interface for per-stage pipeline audit logging.
type AnalysisLogger interface {
	LogStage(stage StageLog) error
}

// NewAnalysisLogFilePath returns a file path based on a cleaned up model name or id to make it easier to identify specific logs produced with various models.
func NewAnalysisLogFilePath(model string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.ReplaceAll(strings.ToLower(model), ":", "_"),
	)
}

// StageLog records one pipeline stage: what went in, what came out (or the error), and how long it took.
type StageLog struct {
	AnalysisID string        `json:"analysis_id,omitempty"`
	Stage      string        `json:"stage"`
	Timestamp  time.Time     `json:"timestamp"`
	Input      string        `json:"input,omitempty"`
	Output     any           `json:"output,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
}

// FileAnalysisLogger logs to a file, accumulating stage records and flushing at
// the end. Safe for concurrent use: stages within one analysis run in parallel,
// and one logger instance is shared across requests.
type FileAnalysisLogger struct {
	mu     sync.Mutex
	stages []StageLog
	writer io.Writer
}

// NewFileAnalysisLogger creates a new file-based analysis logger
func NewFileAnalysisLogger(writer io.Writer) *FileAnalysisLogger {
	return &FileAnalysisLogger{
		stages: make([]StageLog, 0),
		writer: writer,
	}
}

// LogStage logs a stage record to the buffer (does not flush immediately)
func (fal *FileAnalysisLogger) LogStage(stage StageLog) error {
	fal.mu.Lock()
	defer fal.mu.Unlock()
	fal.stages = append(fal.stages, stage)
	return nil
}

// Flush flushes all accumulated stage records to the writer
func (fal *FileAnalysisLogger) Flush() error {
	fal.mu.Lock()
	defer fal.mu.Unlock()

	if fal.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"analysis_session": map[string]any{
			"timestamp": time.Now(),
			"stages":    fal.stages,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal analysis log: %w", err)
	}

	if _, err := fal.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write analysis log: %w", err)
	}

	// Clear the buffer after successful write
	fal.stages = fal.stages[:0]
	return nil
}

// NoOpAnalysisLogger is a logger that discards all stage records
type NoOpAnalysisLogger struct{}

// NewNoOpAnalysisLogger creates a new no-op analysis logger
func NewNoOpAnalysisLogger() *NoOpAnalysisLogger {
	return &NoOpAnalysisLogger{}
}

// LogStage discards the stage record (no-op)
func (nop *NoOpAnalysisLogger) LogStage(stage StageLog) error {
	return nil
}

// StdoutAnalysisLogger logs each stage record as a JSON line to stdout (for Lambda/CloudWatch)
type StdoutAnalysisLogger struct{}

// NewStdoutAnalysisLogger creates a new stdout-based analysis logger
func NewStdoutAnalysisLogger() *StdoutAnalysisLogger {
	return &StdoutAnalysisLogger{}
}

// LogStage writes the stage record as a JSON line to os.Stdout
func (l *StdoutAnalysisLogger) LogStage(stage StageLog) error {
	data, err := json.Marshal(stage)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
