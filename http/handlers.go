package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"loanapproval/ml"
)

const (
	defaultPreviewRows = 50
	defaultLogEntries  = 20
)

type handlers struct {
	service  *TrainingService
	progress http.Handler
	logger   *zap.Logger
}

// RegisterHandlers mounts the API on mux. progress serves the training
// progress websocket and may be nil.
func RegisterHandlers(mux *http.ServeMux, service *TrainingService, progress http.Handler, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{service: service, progress: progress, logger: logger}

	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/model/status", h.handleModelStatus)
	mux.HandleFunc("POST /api/model/train", h.handleTrain)
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	mux.HandleFunc("GET /api/training/log", h.handleTrainingLog)
	mux.HandleFunc("GET /api/dataset/preview", h.handleDatasetPreview)
	mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	if progress != nil {
		mux.Handle("GET /api/ws/training", progress)
	}
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"ready":  h.service.Status().Ready,
	})
}

func (h *handlers) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.Status())
}

func (h *handlers) handleTrain(w http.ResponseWriter, r *http.Request) {
	if err := h.service.TrainAsync(); err != nil {
		if errors.Is(err, ErrTrainingInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "training started"})
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	var row ml.Record
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	prediction, err := h.service.Predict(row)
	if errors.Is(err, ml.ErrModelNotReady) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, prediction)
}

func (h *handlers) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLogEntries)
	logs, err := h.service.TrainingHistory(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func (h *handlers) handleDatasetPreview(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPreviewRows)
	rows, err := h.service.Preview(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := h.service.Metrics()
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(metrics.ExportPrometheus()))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": metrics.Uptime().Seconds(),
		"metrics":        metrics.Snapshot(),
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
