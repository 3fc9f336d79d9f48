package ml

import (
	"errors"
	"fmt"
)

// RandomForest averages the class distributions of its trees.
type RandomForest struct {
	classSet
	trees []*DecisionTree
}

type randomForestParams struct {
	NumFeatures int          `json:"n_features"`
	Trees       [][]TreeNode `json:"trees"`
}

func newRandomForest(classes []int, params randomForestParams) (*RandomForest, error) {
	if len(params.Trees) == 0 {
		return nil, errors.New("random forest has no trees")
	}
	rf := &RandomForest{classSet: classes, trees: make([]*DecisionTree, 0, len(params.Trees))}
	for i, nodes := range params.Trees {
		tree, err := newDecisionTree(classes, decisionTreeParams{NumFeatures: params.NumFeatures, Nodes: nodes})
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		rf.trees = append(rf.trees, tree)
	}
	return rf, nil
}

func (rf *RandomForest) NumFeatures() int {
	return rf.trees[0].NumFeatures()
}

func (rf *RandomForest) Predict(features []float64) (int, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return rf.labelFor(proba), nil
}

func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	sum := make([]float64, len(rf.Classes()))
	for _, tree := range rf.trees {
		proba, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		for i, p := range proba {
			sum[i] += p
		}
	}
	for i := range sum {
		sum[i] /= float64(len(rf.trees))
	}
	return sum, nil
}
