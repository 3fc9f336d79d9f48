package ml

import (
	"errors"
	"fmt"
)

type DecisionTree struct {
	classSet
	nodes    []TreeNode
	features int
}

// TreeNode is one node of a fitted tree. Leaves carry per-class weights in Value.
type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	Value      []float64 `json:"value"`
	IsLeaf     bool      `json:"is_leaf"`
}

type decisionTreeParams struct {
	NumFeatures int        `json:"n_features"`
	Nodes       []TreeNode `json:"nodes"`
}

func newDecisionTree(classes []int, params decisionTreeParams) (*DecisionTree, error) {
	dt := &DecisionTree{classSet: classes, nodes: params.Nodes, features: params.NumFeatures}
	if err := dt.check(); err != nil {
		return nil, err
	}
	return dt, nil
}

func (dt *DecisionTree) NumFeatures() int {
	return dt.features
}

func (dt *DecisionTree) Predict(features []float64) (int, error) {
	proba, err := dt.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return dt.labelFor(proba), nil
}

// PredictProba walks the tree; x[f] <= threshold goes left.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	if len(features) != dt.features {
		return nil, shapeError("decision tree", dt.features, len(features))
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return normalizeDistribution(node.Value), nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
	return nil, errors.New("invalid tree state")
}

// check validates node links once at load time so prediction never indexes out of range.
func (dt *DecisionTree) check() error {
	if len(dt.nodes) == 0 {
		return errors.New("decision tree has no nodes")
	}
	if dt.features <= 0 {
		return errors.New("decision tree n_features must be positive")
	}
	classes := len(dt.Classes())
	for i, node := range dt.nodes {
		if node.IsLeaf {
			if len(node.Value) != classes {
				return fmt.Errorf("leaf %d has %d class weights, want %d", i, len(node.Value), classes)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= dt.features {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(dt.nodes) {
				return fmt.Errorf("node %d: invalid child %d", i, child)
			}
		}
	}
	return nil
}
