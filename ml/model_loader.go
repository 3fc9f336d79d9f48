package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Artifact types understood by the loader.
const (
	TypeLogisticRegression = "logistic_regression"
	TypeDecisionTree       = "decision_tree"
	TypeRandomForest       = "random_forest"
	TypeKNN                = "knn"
	TypeStandardScaler     = "standard_scaler"
	TypeMinMaxScaler       = "minmax_scaler"
	TypePCA                = "pca"
)

// Artifact is the on-disk envelope for a fitted model or scaler.
type Artifact struct {
	Type     string          `json:"type"`
	Encoding string          `json:"encoding,omitempty"`
	Classes  []int           `json:"classes,omitempty"`
	Params   json.RawMessage `json:"params"`
}

// LoadedArtifact holds exactly one of Classifier, Scaler or Projection.
type LoadedArtifact struct {
	Type       string
	Encoding   string
	Classifier Classifier
	Scaler     Scaler
	Projection Projector
}

// IsScaler reports whether the artifact is a feature scaler.
func (l *LoadedArtifact) IsScaler() bool {
	return l.Scaler != nil
}

func (l *LoadedArtifact) IsProjection() bool {
	return l.Projection != nil
}

// LoadArtifact reads and decodes an artifact file.
func LoadArtifact(path string) (*LoadedArtifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	loaded, err := DecodeArtifact(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return loaded, nil
}

// DecodeArtifact builds a classifier or scaler from an encoded envelope.
func DecodeArtifact(payload []byte) (*LoadedArtifact, error) {
	var artifact Artifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if len(artifact.Params) == 0 {
		return nil, errors.New("artifact has no params")
	}
	if err := checkClasses(artifact.Classes); err != nil {
		return nil, err
	}

	loaded := &LoadedArtifact{Type: artifact.Type, Encoding: artifact.Encoding}
	var err error
	switch artifact.Type {
	case TypeLogisticRegression:
		var p logisticParams
		if err = decodeParams(artifact.Params, &p); err == nil {
			loaded.Classifier, err = newLogisticRegression(artifact.Classes, p)
		}
	case TypeDecisionTree:
		var p decisionTreeParams
		if err = decodeParams(artifact.Params, &p); err == nil {
			loaded.Classifier, err = newDecisionTree(artifact.Classes, p)
		}
	case TypeRandomForest:
		var p randomForestParams
		if err = decodeParams(artifact.Params, &p); err == nil {
			loaded.Classifier, err = newRandomForest(artifact.Classes, p)
		}
	case TypeKNN:
		var p knnParams
		if err = decodeParams(artifact.Params, &p); err == nil {
			loaded.Classifier, err = newKNN(artifact.Classes, p)
		}
	case TypeStandardScaler:
		var p standardScalerParams
		if err = decodeParams(artifact.Params, &p); err == nil {
			loaded.Scaler, err = newStandardScaler(p)
		}
	case TypeMinMaxScaler:
		var p minMaxScalerParams
		if err = decodeParams(artifact.Params, &p); err == nil {
			loaded.Scaler, err = newMinMaxScaler(p)
		}
	case TypePCA:
		var p pcaParams
		if err = decodeParams(artifact.Params, &p); err == nil {
			loaded.Projection, err = newPCA(p)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedArtifact, artifact.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", artifact.Type, err)
	}
	return loaded, nil
}

// decodeParams rejects unknown keys so a misspelled parameter fails at load time.
func decodeParams(raw json.RawMessage, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func checkClasses(classes []int) error {
	if len(classes) == 1 {
		return errors.New("artifact needs at least two classes")
	}
	seen := make(map[int]bool, len(classes))
	for _, c := range classes {
		if seen[c] {
			return fmt.Errorf("duplicate class %d", c)
		}
		seen[c] = true
	}
	return nil
}
