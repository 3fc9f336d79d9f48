package ml

// Classifier is a fitted model. PredictProba is ordered like Classes.
type Classifier interface {
	Predict(features []float64) (int, error)
	PredictProba(features []float64) ([]float64, error)
	Classes() []int
	NumFeatures() int
}

// Scaler is a fitted feature transform applied before inference.
type Scaler interface {
	Transform(features []float64) ([]float64, error)
	NumFeatures() int
}

// Projector is a transform whose output width differs from its input width.
type Projector interface {
	Scaler
	NumComponents() int
}

var binaryClasses = []int{0, 1}

// classSet holds the class labels of a fitted model.
type classSet []int

func (c classSet) Classes() []int {
	if len(c) == 0 {
		return append([]int(nil), binaryClasses...)
	}
	return append([]int(nil), c...)
}

func (c classSet) labelFor(proba []float64) int {
	return c.Classes()[argmax(proba)]
}
