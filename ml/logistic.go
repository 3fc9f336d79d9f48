package ml

import "errors"

// LogisticRegression is a fitted binary logistic model.
type LogisticRegression struct {
	classSet
	coefficients []float64
	intercept    float64
}

type logisticParams struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

func newLogisticRegression(classes []int, params logisticParams) (*LogisticRegression, error) {
	if len(params.Coefficients) == 0 {
		return nil, errors.New("logistic regression has no coefficients")
	}
	if len(classes) > 2 {
		return nil, errors.New("logistic regression supports two classes")
	}
	return &LogisticRegression{
		classSet:     classes,
		coefficients: params.Coefficients,
		intercept:    params.Intercept,
	}, nil
}

func (m *LogisticRegression) NumFeatures() int {
	return len(m.coefficients)
}

func (m *LogisticRegression) Predict(features []float64) (int, error) {
	proba, err := m.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return m.labelFor(proba), nil
}

func (m *LogisticRegression) PredictProba(features []float64) ([]float64, error) {
	if len(features) != len(m.coefficients) {
		return nil, shapeError("logistic regression", len(m.coefficients), len(features))
	}
	p := sigmoid(dot(m.coefficients, features) + m.intercept)
	return []float64{1 - p, p}, nil
}
