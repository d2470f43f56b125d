package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"mealsense"
	"mealsense/feedback"
)

const defaultMaxImageBytes = 10 << 20 // 10MB

// Server exposes the analysis and feedback endpoints. The image size cap and
// data-URL decoding live here, outside the pipeline: the pipeline only ever
// sees decoded bytes.
type Server struct {
	analyzer      mealsense.Analyzer
	recorder      *feedback.Recorder
	maxImageBytes int64
}

func New(analyzer mealsense.Analyzer, recorder *feedback.Recorder, maxImageBytes int64) *Server {
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxImageBytes
	}
	return &Server{
		analyzer:      analyzer,
		recorder:      recorder,
		maxImageBytes: maxImageBytes,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/feedback", s.handleFeedback)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

type analyzeRequest struct {
	Image string `json:"image"`
}

type analyzeResponse struct {
	Success bool `json:"success"`
	*mealsense.Analysis
}

type errorResponse struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error"`
	Details  string   `json:"details,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type feedbackResponse struct {
	Success    bool   `json:"success"`
	FeedbackID string `json:"feedbackId"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	// Base64 inflates by 4/3, so allow the encoded body some headroom over the
	// decoded image cap.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImageBytes*2)

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	image, format, err := DecodeImage(req.Image, s.maxImageBytes)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid image input", Details: err.Error()})
		return
	}

	analysis, err := s.analyzer.Analyze(r.Context(), image, format)
	if err != nil {
		var rejected *mealsense.NoConfidentItemsError
		switch {
		case errors.As(err, &rejected):
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error:    rejected.Error(),
				Warnings: rejected.Warnings,
			})
		case errors.Is(err, mealsense.ErrInvalidImage):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid image input", Details: err.Error()})
		default:
			slog.Error("SERVER: Analysis failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "analysis failed", Details: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{Success: true, Analysis: analysis})

	// The response is on the wire; quality evaluation must never delay it.
	s.analyzer.EvaluateDetached(r.Context(), analysis.Result)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb mealsense.UserFeedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	feedbackID, err := s.recorder.Record(r.Context(), fb)
	if err != nil {
		if errors.Is(err, mealsense.ErrMissingAnalysisID) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: mealsense.ErrMissingAnalysisID.Error()})
			return
		}
		slog.Error("SERVER: Feedback recording failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to record feedback", Details: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, feedbackResponse{Success: true, FeedbackID: feedbackID})
}

// DecodeImage turns a base64 payload, optionally wrapped in a
// data:image/<type>;base64, prefix, into raw bytes plus a sniffed format name
// (jpeg, png, gif or webp).
func DecodeImage(payload string, maxBytes int64) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, "", fmt.Errorf("%w: empty image payload", mealsense.ErrInvalidImage)
	}

	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ";base64,")
		if idx < 0 {
			return nil, "", fmt.Errorf("%w: data URL without base64 marker", mealsense.ErrInvalidImage)
		}
		payload = payload[idx+len(";base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients strip padding.
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: not valid base64: %v", mealsense.ErrInvalidImage, err)
		}
	}

	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("%w: image exceeds %d bytes", mealsense.ErrInvalidImage, maxBytes)
	}

	format, err := sniffImageFormat(data)
	if err != nil {
		return nil, "", err
	}
	return data, format, nil
}

func sniffImageFormat(data []byte) (string, error) {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return "jpeg", nil
	case "image/png":
		return "png", nil
	case "image/gif":
		return "gif", nil
	case "image/webp":
		return "webp", nil
	default:
		return "", fmt.Errorf("%w: payload is not a supported image type", mealsense.ErrInvalidImage)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("SERVER: Failed to encode response", "error", err)
	}
}
