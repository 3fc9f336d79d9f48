package http

import (
	"context"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"heartrisk/db"
	"heartrisk/ml"
	"heartrisk/monitoring"
	"heartrisk/predict"
)

// Predictor scores requests.
type Predictor interface {
	Predict(ctx context.Context, req predict.Request) (*predict.Result, error)
}

// Reloader rebuilds the registry on demand.
type Reloader interface {
	Reload() error
}

// PredictionLog lists audited predictions.
type PredictionLog interface {
	Recent(ctx context.Context, limit int) ([]db.Prediction, error)
}

// Deps are the components the HTTP layer serves. Store, Feed, Metrics and
// Reloader are optional.
type Deps struct {
	Registry  predict.RegistrySource
	Predictor Predictor
	Catalog   *ml.SchemaCatalog
	Reloader  Reloader
	Store     PredictionLog
	Feed      *monitoring.PredictionFeed
	Metrics   *monitoring.PredictionMetrics
	Logger    *zap.Logger
}

type handlers struct {
	Deps
	logger   *zap.Logger
	validate *validator.Validate
	started  time.Time
}

// ModelInfo is one entry of GET /api/models.
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Encoding    string `json:"encoding"`
	Features    int    `json:"features"`
	Classes     []int  `json:"classes"`
	Scaled      bool   `json:"scaled"`
	Variant     string `json:"variant,omitempty"`
	Projected   bool   `json:"projected"`
}

// RegisterHandlers mounts every route on mux.
func RegisterHandlers(mux *http.ServeMux, deps Deps) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	h := &handlers{Deps: deps, logger: logger, validate: validate, started: time.Now()}

	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /models", h.handleModelNames)
	mux.HandleFunc("GET /api/models", h.handleModels)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	if deps.Catalog != nil {
		mux.HandleFunc("GET /api/schemas", h.handleSchemas)
	}
	if deps.Reloader != nil {
		mux.HandleFunc("POST /api/models/reload", h.handleReload)
	}
	if deps.Metrics != nil {
		mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	}
	if deps.Store != nil {
		mux.HandleFunc("GET /api/predictions", h.handlePredictions)
	}
	if deps.Feed != nil {
		mux.HandleFunc("GET /api/ws/predictions", deps.Feed.HandleWebSocket)
	}
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	reg := h.Registry.Current()
	status := "ok"
	if reg.Len() == 0 {
		status = "degraded"
	}
	body := map[string]interface{}{
		"status":           status,
		"models":           reg.Len(),
		"registry_version": reg.Version(),
		"loaded_at":        reg.BuiltAt(),
		"uptime":           time.Since(h.started).Round(time.Second).String(),
	}
	if h.Feed != nil {
		body["feed"] = h.Feed.Stats()
	}
	respondJSON(w, http.StatusOK, body)
}

// handleModelNames lists the display names clients send back as model_choice.
func (h *handlers) handleModelNames(w http.ResponseWriter, r *http.Request) {
	reg := h.Registry.Current()
	if reg.Len() == 0 {
		respondError(w, r, http.StatusNotFound, "no models are loaded", nil)
		return
	}
	names := make([]string, 0, reg.Len())
	for _, e := range reg.Entries() {
		names = append(names, e.DisplayName)
	}
	sort.Strings(names)
	respondJSON(w, http.StatusOK, names)
}

func (h *handlers) handleModels(w http.ResponseWriter, r *http.Request) {
	reg := h.Registry.Current()
	models := make([]ModelInfo, 0, reg.Len())
	for _, e := range reg.Entries() {
		models = append(models, ModelInfo{
			Name:        e.Name,
			DisplayName: e.DisplayName,
			Type:        e.Type,
			Encoding:    e.Schema.Name,
			Features:    e.Classifier.NumFeatures(),
			Classes:     e.Classifier.Classes(),
			Scaled:      reg.Scaler() != nil,
			Variant:     e.Variant,
			Projected:   e.Projection != nil,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"models":           models,
		"registry_version": reg.Version(),
		"scaler":           reg.ScalerSource(),
	})
}

func (h *handlers) handleSchemas(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"schemas": h.Catalog.Schemas(),
		"fields":  ml.RecordFields(),
	})
}

func (h *handlers) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.Reloader.Reload(); err != nil {
		h.logger.Warn("manual reload failed", zap.Error(err))
		respondError(w, r, http.StatusConflict, err.Error(), map[string]interface{}{
			"models": h.Registry.Current().List(),
		})
		return
	}
	reg := h.Registry.Current()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"models":           reg.List(),
		"registry_version": reg.Version(),
	})
}

func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(h.Metrics.ExportPrometheus()))
		return
	}
	respondJSON(w, http.StatusOK, h.Metrics.Snapshot())
}

func (h *handlers) handlePredictions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 || l > 1000 {
			respondError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000", nil)
			return
		}
		limit = l
	}

	predictions, err := h.Store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to query predictions", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "failed to query predictions", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": predictions,
		"count":       len(predictions),
	})
}
