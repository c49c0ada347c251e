package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tomato-leaves/disease-detection-api/advisory"
	"github.com/tomato-leaves/disease-detection-api/detections"
	"github.com/tomato-leaves/disease-detection-api/models"
)

// Detector is the inference backend the HTTP layer depends on.
type Detector interface {
	Predict(ctx context.Context, imageBytes []byte) (*models.DetectionResult, error)
}

// timedDetector is implemented by detectors that report per-stage timings.
type timedDetector interface {
	ProcessImage(ctx context.Context, imageBytes []byte, timings *models.ProcessingTimings) (*models.DetectionResult, error)
}

type statsReporter interface {
	Stats() detections.PoolStats
}

type labelReporter interface {
	Labels() detections.Labels
}

// Advisor produces disease advice from detected labels.
type Advisor interface {
	GenerateResponse(ctx context.Context, labels []string, modelName string) (string, error)
	Options() advisory.Options
}

type AppState struct {
	Detector       Detector
	Advisor        Advisor
	Logger         *zap.Logger
	Debug          bool
	MaxUploadBytes int64
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ctxKey int

const requestIDKey ctxKey = iota

const defaultMaxUpload = 10 << 20

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *AppState) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.loggingMiddleware, s.recoverMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/predict", s.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/api/advisory", s.handleAdvisory).Methods(http.MethodPost)
	s.addMonitoringRoutes(r)

	return r
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
}

func (s *AppState) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: MsgHealthy})
}

func (s *AppState) handlePredict(w http.ResponseWriter, r *http.Request) {
	startTotal := time.Now()
	timings := &models.ProcessingTimings{RequestID: requestID(r.Context())}

	imgBytes, uerr := s.readImageUpload(w, r)
	if uerr != nil {
		sendErrorResponse(w, uerr.code, uerr.message, uerr.status)
		return
	}

	var (
		result *models.DetectionResult
		err    error
	)
	if td, ok := s.Detector.(timedDetector); ok {
		result, err = td.ProcessImage(r.Context(), imgBytes, timings)
	} else {
		result, err = s.Detector.Predict(r.Context(), imgBytes)
	}
	if err != nil {
		s.sendDetectionError(w, r, err)
		return
	}

	timings.Total = time.Since(startTotal)
	s.logTimings(timings, result.Len())

	writeJSON(w, http.StatusOK, result)
}

type uploadError struct {
	status  int
	code    string
	message string
}

func badUpload(code, message string) *uploadError {
	return &uploadError{status: http.StatusBadRequest, code: code, message: message}
}

// readImageUpload returns the bytes of the multipart field "file".
func (s *AppState) readImageUpload(w http.ResponseWriter, r *http.Request) ([]byte, *uploadError) {
	maxMemory := int64(defaultMaxUpload)
	if s.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
		maxMemory = s.MaxUploadBytes
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &uploadError{
				status:  http.StatusRequestEntityTooLarge,
				code:    "payload_too_large",
				message: fmt.Sprintf(MsgTooLarge, tooLarge.Limit),
			}
		}
		return nil, badUpload("invalid_request", MsgMissingFile)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, badUpload("invalid_request", MsgMissingFile)
	}
	defer file.Close()

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" {
		return nil, badUpload("invalid_content_type", MsgMissingContentType)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, badUpload("invalid_content_type", fmt.Sprintf(MsgNotAnImage, contentType))
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, badUpload("invalid_request", "Failed to read uploaded file")
	}
	return data, nil
}

// sendDetectionError maps detector failures to responses. Undecodable images
// are reported as server errors, not as bad requests.
func (s *AppState) sendDetectionError(w http.ResponseWriter, r *http.Request, err error) {
	logger := s.Logger.With(zap.String("request_id", requestID(r.Context())))
	switch {
	case errors.Is(err, detections.ErrDecode):
		logger.Error("decode image", zap.Error(err))
		sendErrorResponse(w, "decode_error", MsgDecodeFailed, http.StatusInternalServerError)
	case errors.Is(err, detections.ErrAcquireTimeout), errors.Is(err, detections.ErrPoolClosed):
		logger.Warn("no inference session", zap.Error(err))
		sendErrorResponse(w, "session_error", err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request cancelled", zap.Error(err))
		sendErrorResponse(w, "cancelled", err.Error(), http.StatusServiceUnavailable)
	default:
		logger.Error("detection failed", zap.Error(err))
		sendErrorResponse(w, "processing_error", err.Error(), http.StatusInternalServerError)
	}
}

func (s *AppState) handleAdvisory(w http.ResponseWriter, r *http.Request) {
	if s.Advisor == nil {
		sendErrorResponse(w, "advisory_disabled", MsgAdvisoryDisabled, http.StatusServiceUnavailable)
		return
	}

	var req models.AdvisoryRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		sendErrorResponse(w, "invalid_request", "bad json: "+err.Error(), http.StatusBadRequest)
		return
	}

	model := req.Model
	if model == "" {
		model = s.Advisor.Options().Model
	}

	text, err := s.Advisor.GenerateResponse(r.Context(), req.Labels, model)
	if err != nil {
		logger := s.Logger.With(zap.String("request_id", requestID(r.Context())))
		switch {
		case errors.Is(err, advisory.ErrModelNotAvailable):
			logger.Error("advisory model rejected", zap.String("model", model), zap.Error(err))
			sendErrorResponse(w, "model_not_available", err.Error(), http.StatusInternalServerError)
		case errors.Is(err, advisory.ErrNoAPIKey):
			sendErrorResponse(w, "advisory_disabled", MsgAdvisoryDisabled, http.StatusServiceUnavailable)
		default:
			logger.Error("advisory failed", zap.Error(err))
			sendErrorResponse(w, "advisory_error", err.Error(), http.StatusBadGateway)
		}
		return
	}

	writeJSON(w, http.StatusOK, models.AdvisoryResponse{Model: model, Advisory: text})
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	response := map[string]interface{}{
		"cpu_features": detections.CPUFeatures(),
	}
	if sr, ok := s.Detector.(statsReporter); ok {
		stats := sr.Stats()
		response["pool_size"] = stats.PoolSize
		response["sessions_live"] = stats.Live
		response["sessions_in_use"] = stats.InUse
		response["total_acquired"] = stats.TotalAcquired
		response["total_released"] = stats.TotalReleased
		response["acquire_failures"] = stats.AcquireFailures
		response["wait_time_ns"] = stats.WaitTime
		if len(stats.RecentErrors) > 0 {
			response["recent_errors"] = stats.RecentErrors
		}
	}

	if lr, ok := s.Detector.(labelReporter); ok {
		response["classes"] = lr.Labels()
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *AppState) logTimings(t *models.ProcessingTimings, boxes int) {
	if !s.Debug {
		return
	}
	s.Logger.Debug("processing times",
		zap.String("request_id", t.RequestID),
		zap.Int("boxes", boxes),
		zap.Duration("decode", t.ImageDecode),
		zap.Duration("resize", t.Resize),
		zap.Duration("preprocess", t.Preprocess),
		zap.Duration("inference", t.Inference),
		zap.Duration("postprocess", t.Postprocess),
		zap.Duration("total", t.Total))
}

func (s *AppState) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *AppState) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Logger.Info("request",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *AppState) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.Logger.Error("panic serving request",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("panic", v),
					zap.Stack("stack"))
				sendErrorResponse(w, "internal_error", "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
