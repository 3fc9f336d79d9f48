package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCAArtifact(t *testing.T) {
	loaded, err := DecodeArtifact([]byte(`{
	  "type": "pca",
	  "params": {"mean": [1, 2, 3], "components": [[1, 0, 0], [0, 0.5, 0.5]]}
	}`))
	require.NoError(t, err)
	require.True(t, loaded.IsProjection())
	require.False(t, loaded.IsScaler())
	assert.Equal(t, 3, loaded.Projection.NumFeatures())
	assert.Equal(t, 2, loaded.Projection.NumComponents())

	out, err := loaded.Projection.Transform([]float64{3, 4, 7})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 3}, out, 1e-12)

	_, err = loaded.Projection.Transform([]float64{1, 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestPCAArtifactRejectsBadShapes(t *testing.T) {
	for name, params := range map[string]string{
		"no mean":       `{"mean": [], "components": [[1]]}`,
		"no components": `{"mean": [0, 0], "components": []}`,
		"ragged":        `{"mean": [0, 0], "components": [[1, 0], [1]]}`,
		"unknown key":   `{"mean": [0], "components": [[1]], "whiten": true}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeArtifact([]byte(`{"type": "pca", "params": ` + params + `}`))
			assert.Error(t, err)
		})
	}
}
