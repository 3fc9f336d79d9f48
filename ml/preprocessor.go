package ml

import (
	"errors"
	"fmt"
)

// StandardScaler centers and scales each feature: (x - mean) / scale.
type StandardScaler struct {
	mean  []float64
	scale []float64
}

type standardScalerParams struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func newStandardScaler(params standardScalerParams) (*StandardScaler, error) {
	if len(params.Mean) == 0 {
		return nil, errors.New("standard scaler has no features")
	}
	if len(params.Mean) != len(params.Scale) {
		return nil, errors.New("standard scaler mean/scale length mismatch")
	}
	return &StandardScaler{mean: params.Mean, scale: params.Scale}, nil
}

func (s *StandardScaler) NumFeatures() int {
	return len(s.mean)
}

// Transform treats a zero scale as one, matching how constant features are fitted.
func (s *StandardScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.mean) {
		return nil, shapeError("standard scaler", len(s.mean), len(features))
	}
	out := make([]float64, len(features))
	for i, v := range features {
		scale := s.scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.mean[i]) / scale
	}
	return out, nil
}

// MinMaxScaler maps each feature onto [0,1] using fitted bounds.
type MinMaxScaler struct {
	mins []float64
	maxs []float64
}

type minMaxScalerParams struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

func newMinMaxScaler(params minMaxScalerParams) (*MinMaxScaler, error) {
	if len(params.Min) == 0 {
		return nil, errors.New("minmax scaler has no features")
	}
	if len(params.Min) != len(params.Max) {
		return nil, errors.New("minmax scaler min/max length mismatch")
	}
	for i := range params.Min {
		if params.Min[i] > params.Max[i] {
			return nil, fmt.Errorf("minmax scaler feature %d: min > max", i)
		}
	}
	return &MinMaxScaler{mins: params.Min, maxs: params.Max}, nil
}

func (s *MinMaxScaler) NumFeatures() int {
	return len(s.mins)
}

func (s *MinMaxScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.mins) {
		return nil, shapeError("minmax scaler", len(s.mins), len(features))
	}
	return NormalizeVector(features, s.mins, s.maxs)
}
