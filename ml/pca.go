package ml

import (
	"errors"
	"fmt"
)

// PCA projects a vector onto fitted principal components:
// out[j] = sum_i (x[i] - mean[i]) * components[j][i].
type PCA struct {
	mean       []float64
	components [][]float64
}

type pcaParams struct {
	Mean       []float64   `json:"mean"`
	Components [][]float64 `json:"components"`
}

func newPCA(params pcaParams) (*PCA, error) {
	if len(params.Mean) == 0 {
		return nil, errors.New("pca has no features")
	}
	if len(params.Components) == 0 {
		return nil, errors.New("pca has no components")
	}
	for j, row := range params.Components {
		if len(row) != len(params.Mean) {
			return nil, fmt.Errorf("pca component %d has %d weights, want %d", j, len(row), len(params.Mean))
		}
	}
	return &PCA{mean: params.Mean, components: params.Components}, nil
}

// NumFeatures is the input width.
func (p *PCA) NumFeatures() int {
	return len(p.mean)
}

// NumComponents is the output width.
func (p *PCA) NumComponents() int {
	return len(p.components)
}

func (p *PCA) Transform(features []float64) ([]float64, error) {
	if len(features) != len(p.mean) {
		return nil, shapeError("pca", len(p.mean), len(features))
	}
	out := make([]float64, len(p.components))
	for j, row := range p.components {
		var sum float64
		for i, w := range row {
			sum += (features[i] - p.mean[i]) * w
		}
		out[j] = sum
	}
	return out, nil
}
