package ml

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogisticRegressionArtifact(t *testing.T) {
	loaded, err := DecodeArtifact([]byte(`{
	  "type": "logistic_regression",
	  "encoding": "ordinal-v1",
	  "params": {"coefficients": [2, -1], "intercept": 0.5}
	}`))
	require.NoError(t, err)
	require.False(t, loaded.IsScaler())
	assert.Equal(t, SchemaOrdinalV1, loaded.Encoding)
	assert.Equal(t, 2, loaded.Classifier.NumFeatures())
	assert.Equal(t, []int{0, 1}, loaded.Classifier.Classes())

	proba, err := loaded.Classifier.PredictProba([]float64{1, 1})
	require.NoError(t, err)
	want := 1 / (1 + math.Exp(-1.5))
	assert.InDelta(t, want, proba[1], 1e-12)
	assert.InDelta(t, 1.0, proba[0]+proba[1], 1e-12)

	label, err := loaded.Classifier.Predict([]float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, label)

	label, err = loaded.Classifier.Predict([]float64{-3, 1})
	require.NoError(t, err)
	assert.Equal(t, 0, label)

	_, err = loaded.Classifier.PredictProba([]float64{1})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestRandomForestArtifactAveragesTrees(t *testing.T) {
	loaded, err := DecodeArtifact([]byte(`{
	  "type": "random_forest",
	  "params": {"n_features": 1, "trees": [
	    [{"feature_idx": 0, "threshold": 0, "left_child": 1, "right_child": 2},
	     {"is_leaf": true, "value": [1, 0]},
	     {"is_leaf": true, "value": [0, 1]}],
	    [{"is_leaf": true, "value": [1, 1]}]
	  ]}
	}`))
	require.NoError(t, err)

	proba, err := loaded.Classifier.PredictProba([]float64{1})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, proba[1], 1e-12)

	proba, err = loaded.Classifier.PredictProba([]float64{-1})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, proba[1], 1e-12)
}

func TestKNNArtifact(t *testing.T) {
	loaded, err := DecodeArtifact([]byte(`{
	  "type": "knn",
	  "params": {"k": 3, "points": [[0, 0], [0, 1], [5, 5], [6, 5], [5, 6]], "labels": [0, 0, 1, 1, 1]}
	}`))
	require.NoError(t, err)

	proba, err := loaded.Classifier.PredictProba([]float64{5.5, 5.5})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, proba[1], 1e-12)

	proba, err = loaded.Classifier.PredictProba([]float64{0, 0.4})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, proba[1], 1e-12)
	label, err := loaded.Classifier.Predict([]float64{0, 0.4})
	require.NoError(t, err)
	assert.Equal(t, 0, label)
}

func TestScalerArtifacts(t *testing.T) {
	standard, err := DecodeArtifact([]byte(`{"type": "standard_scaler", "params": {"mean": [10, 0], "scale": [2, 0]}}`))
	require.NoError(t, err)
	require.True(t, standard.IsScaler())
	out, err := standard.Scaler.Transform([]float64{14, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, out)

	minmax, err := DecodeArtifact([]byte(`{"type": "minmax_scaler", "params": {"min": [0, 10], "max": [10, 10]}}`))
	require.NoError(t, err)
	out, err = minmax.Scaler.Transform([]float64{5, 10})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0}, out)

	_, err = minmax.Scaler.Transform([]float64{1})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDecodeArtifactErrors(t *testing.T) {
	tests := map[string]string{
		"unknown type":    `{"type": "svm", "params": {}}`,
		"missing params":  `{"type": "logistic_regression"}`,
		"unknown param":   `{"type": "logistic_regression", "params": {"coef": [1]}}`,
		"single class":    `{"type": "logistic_regression", "classes": [1], "params": {"coefficients": [1]}}`,
		"knn k too large": `{"type": "knn", "params": {"k": 4, "points": [[0]], "labels": [0]}}`,
		"not json":        `model`,
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeArtifact([]byte(payload))
			assert.Error(t, err)
		})
	}

	_, err := DecodeArtifact([]byte(tests["unknown type"]))
	assert.ErrorIs(t, err, ErrUnsupportedArtifact)
}

func TestLoadArtifactFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, os.WriteFile(path, []byte(treeArtifact), 0o600))

	loaded, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, TypeDecisionTree, loaded.Type)

	_, err = LoadArtifact(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
