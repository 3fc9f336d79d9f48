package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"heartrisk/ml"
	"heartrisk/predict"
	"heartrisk/registry"
)

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	ModelChoice string                 `json:"model_choice" validate:"required"`
	PatientData map[string]interface{} `json:"patient_data" validate:"required"`
}

// FieldDetail describes one rejected field of patient_data.
type FieldDetail struct {
	Field   string   `json:"field"`
	Error   string   `json:"error"`
	Value   string   `json:"value,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return
		}
		respondError(w, r, http.StatusBadRequest, "invalid request JSON", map[string]interface{}{
			"details": []FieldDetail{{Field: "body", Error: bodyError(err)}},
		})
		return
	}
	req.ModelChoice = strings.TrimSpace(req.ModelChoice)
	if err := h.validate.Struct(req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request JSON", map[string]interface{}{
			"details": requestDetails(err),
		})
		return
	}

	result, err := h.Predictor.Predict(r.Context(), predict.Request{
		ID:      GetRequestID(r.Context()),
		Model:   req.ModelChoice,
		Patient: req.PatientData,
	})
	if err != nil {
		h.respondPredictError(w, r, req.ModelChoice, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *handlers) respondPredictError(w http.ResponseWriter, r *http.Request, model string, err error) {
	var notFound *registry.NotFoundError
	switch {
	case errors.Is(err, registry.ErrEmpty):
		respondError(w, r, http.StatusServiceUnavailable, "no models are loaded", nil)
	case errors.As(err, &notFound):
		respondError(w, r, http.StatusNotFound, "model '"+model+"' not found", map[string]interface{}{
			"available_models": h.displayNames(notFound.Available),
		})
	case predict.Classify(err) == predict.OutcomeInvalid:
		respondError(w, r, http.StatusBadRequest, "invalid patient_data", map[string]interface{}{
			"details": fieldDetails(err),
		})
	default:
		h.logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("model", model),
			zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "prediction failed", nil)
	}
}

// displayNames maps registry keys to the names GET /models advertises.
func (h *handlers) displayNames(keys []string) []string {
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, registry.DisplayName(k))
	}
	sort.Strings(names)
	return names
}

// fieldDetails flattens the record errors into one entry per field.
func fieldDetails(err error) []FieldDetail {
	var details []FieldDetail
	var walk func(error)
	walk = func(err error) {
		var missing *ml.MissingFieldsError
		var field *ml.FieldError
		switch {
		case errors.As(err, &missing):
			for _, f := range missing.Fields {
				details = append(details, FieldDetail{Field: f, Error: ml.ErrMissingField.Error()})
			}
		case errors.As(err, &field):
			if joined, ok := err.(interface{ Unwrap() []error }); ok {
				for _, e := range joined.Unwrap() {
					walk(e)
				}
				return
			}
			details = append(details, FieldDetail{
				Field:   field.Field,
				Error:   field.Err.Error(),
				Value:   field.Value,
				Allowed: field.Allowed,
			})
		default:
			details = append(details, FieldDetail{Field: "patient_data", Error: err.Error()})
		}
	}
	walk(err)
	return details
}

func requestDetails(err error) []FieldDetail {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldDetail{{Field: "body", Error: err.Error()}}
	}
	details := make([]FieldDetail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldDetail{Field: fe.Field(), Error: "is required"})
	}
	return details
}

func bodyError(err error) string {
	if errors.Is(err, io.EOF) {
		return "request body is empty"
	}
	return err.Error()
}
