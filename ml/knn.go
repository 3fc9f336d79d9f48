package ml

import (
	"errors"
	"fmt"
	"sort"
)

// KNN votes among the k nearest stored points with uniform weights.
type KNN struct {
	classSet
	k      int
	points [][]float64
	labels []int
}

type knnParams struct {
	K      int         `json:"k"`
	Points [][]float64 `json:"points"`
	Labels []int       `json:"labels"`
}

func newKNN(classes []int, params knnParams) (*KNN, error) {
	if len(params.Points) == 0 {
		return nil, errors.New("knn has no points")
	}
	if len(params.Points) != len(params.Labels) {
		return nil, errors.New("knn points and labels size mismatch")
	}
	if params.K <= 0 || params.K > len(params.Points) {
		return nil, fmt.Errorf("knn k=%d out of range", params.K)
	}
	width := len(params.Points[0])
	m := &KNN{classSet: classes, k: params.K, points: params.Points, labels: params.Labels}
	index := m.classIndex()
	for i, p := range params.Points {
		if len(p) != width {
			return nil, fmt.Errorf("knn point %d has %d features, want %d", i, len(p), width)
		}
		if _, ok := index[params.Labels[i]]; !ok {
			return nil, fmt.Errorf("knn label %d not in classes", params.Labels[i])
		}
	}
	return m, nil
}

func (m *KNN) NumFeatures() int {
	return len(m.points[0])
}

func (m *KNN) Predict(features []float64) (int, error) {
	proba, err := m.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return m.labelFor(proba), nil
}

func (m *KNN) PredictProba(features []float64) ([]float64, error) {
	if len(features) != m.NumFeatures() {
		return nil, shapeError("knn", m.NumFeatures(), len(features))
	}
	type neighbour struct {
		dist  float64
		label int
	}
	neighbours := make([]neighbour, len(m.points))
	for i, p := range m.points {
		neighbours[i] = neighbour{dist: squaredDistance(p, features), label: m.labels[i]}
	}
	// stable so equidistant points keep stored order
	sort.SliceStable(neighbours, func(a, b int) bool {
		return neighbours[a].dist < neighbours[b].dist
	})

	index := m.classIndex()
	votes := make([]float64, len(index))
	for _, n := range neighbours[:m.k] {
		votes[index[n.label]]++
	}
	return normalizeDistribution(votes), nil
}

func (m *KNN) classIndex() map[int]int {
	index := make(map[int]int)
	for i, c := range m.Classes() {
		index[c] = i
	}
	return index
}
