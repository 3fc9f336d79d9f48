// Package predict turns a raw patient record and a model choice into a risk prediction.
package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"heartrisk/ml"
	"heartrisk/registry"
)

// RegistrySource hands out the registry snapshot to score against.
type RegistrySource interface {
	Current() *registry.Registry
}

// Recorder persists successful predictions.
type Recorder interface {
	Save(ctx context.Context, result *Result) error
}

// Publisher fans successful predictions out to live subscribers.
type Publisher interface {
	Publish(result *Result)
}

// Observer receives one call per Predict.
type Observer interface {
	Observe(model, outcome string, cached bool, latency time.Duration)
}

// Request is one prediction call. Patient holds the loosely typed JSON record.
type Request struct {
	ID      string
	Model   string
	Patient map[string]interface{}
}

// Result is the outcome of a successful prediction.
type Result struct {
	ModelUsed      string  `json:"model_used"`
	PredictedClass int     `json:"predicted_class"`
	Label          string  `json:"prediction_label"`
	Probability    float64 `json:"probability_score_class_1"`

	// PredictionID is unique per scored request; RequestID is the caller's
	// correlation id and may repeat.
	PredictionID string    `json:"-"`
	RequestID    string    `json:"-"`
	Model        string    `json:"-"`
	Features     []float64 `json:"-"`
	Cached       bool      `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

type scored struct {
	class       int
	probability float64
}

type Service struct {
	source    RegistrySource
	logger    *zap.Logger
	cache     *lru.Cache[string, scored]
	recorder  Recorder
	publisher Publisher
	observer  Observer
	labels    map[int]string
	now       func() time.Time
}

type Option func(*Service)

// WithCache keeps up to size scored vectors. A size of zero or less disables caching.
func WithCache(size int) Option {
	return func(s *Service) {
		if size <= 0 {
			s.cache = nil
			return
		}
		cache, err := lru.New[string, scored](size)
		if err != nil {
			s.logger.Warn("prediction cache disabled", zap.Error(err))
			return
		}
		s.cache = cache
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithLabels overrides the human-readable label of each class.
func WithLabels(labels map[int]string) Option {
	return func(s *Service) {
		merged := make(map[int]string, len(s.labels)+len(labels))
		for k, v := range s.labels {
			merged[k] = v
		}
		for k, v := range labels {
			merged[k] = v
		}
		s.labels = merged
	}
}

// DefaultLabels names the two classes of the heart-disease target.
func DefaultLabels() map[int]string {
	return map[int]string{
		0: "Low Risk",
		1: "At Risk of Heart Disease",
	}
}

func New(source RegistrySource, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		source: source,
		logger: logger,
		labels: DefaultLabels(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict resolves the model, encodes the record and scores it.
func (s *Service) Predict(ctx context.Context, req Request) (*Result, error) {
	start := s.now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	result, err := s.predict(req)
	s.observe(req.Model, result, err, start)
	if err != nil {
		s.logger.Debug("prediction rejected", zap.String("request_id", req.ID),
			zap.String("model", req.Model), zap.String("outcome", Classify(err)), zap.Error(err))
		return nil, err
	}

	if s.recorder != nil {
		if err := s.recorder.Save(ctx, result); err != nil {
			s.logger.Error("failed to record prediction", zap.String("request_id", req.ID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(result)
	}
	return result, nil
}

// Labels returns a copy of the class label table.
func (s *Service) Labels() map[int]string {
	out := make(map[int]string, len(s.labels))
	for k, v := range s.labels {
		out[k] = v
	}
	return out
}

func (s *Service) predict(req Request) (*Result, error) {
	reg := s.source.Current()
	entry, err := reg.Get(req.Model)
	if err != nil {
		return nil, err
	}

	record, err := ml.ParseRecord(req.Patient)
	if err != nil {
		return nil, err
	}
	features, err := ml.Encode(entry.Schema, record)
	if err != nil {
		if errors.Is(err, ml.ErrSchema) {
			return nil, &InferenceError{Model: entry.Name, Stage: "encode", Err: err}
		}
		return nil, err
	}

	key := cacheKey(reg.Version(), entry.Name, features)
	out, cached := s.lookup(key)
	if !cached {
		input := features
		if scaler := reg.Scaler(); scaler != nil {
			input, err = scaler.Transform(features)
			if err != nil {
				return nil, &InferenceError{Model: entry.Name, Stage: "scale", Err: err}
			}
		}
		if entry.Projection != nil {
			input, err = entry.Projection.Transform(input)
			if err != nil {
				return nil, &InferenceError{Model: entry.Name, Stage: "project", Err: err}
			}
		}
		out, err = score(entry.Classifier, input)
		if err != nil {
			return nil, &InferenceError{Model: entry.Name, Stage: "predict", Err: err}
		}
		if s.cache != nil {
			s.cache.Add(key, out)
		}
	}

	return &Result{
		ModelUsed:      req.Model,
		PredictedClass: out.class,
		Label:          s.label(out.class),
		Probability:    out.probability,
		PredictionID:   uuid.NewString(),
		RequestID:      req.ID,
		Model:          entry.Name,
		Features:       features,
		Cached:         cached,
		CreatedAt:      s.now(),
	}, nil
}

func (s *Service) lookup(key string) (scored, bool) {
	if s.cache == nil {
		return scored{}, false
	}
	return s.cache.Get(key)
}

func (s *Service) label(class int) string {
	if label, ok := s.labels[class]; ok {
		return label
	}
	return "Class " + strconv.Itoa(class)
}

func (s *Service) observe(model string, result *Result, err error, start time.Time) {
	if s.observer == nil {
		return
	}
	name := registry.NormalizeName(model)
	cached := false
	if result != nil {
		name = result.Model
		cached = result.Cached
	}
	s.observer.Observe(name, Classify(err), cached, s.now().Sub(start))
}

// score runs Predict and PredictProba; the probability of class 1 is the second entry.
func score(c ml.Classifier, features []float64) (out scored, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panicked: %v", r)
		}
	}()

	class, err := c.Predict(features)
	if err != nil {
		return out, err
	}
	proba, err := c.PredictProba(features)
	if err != nil {
		return out, err
	}
	if len(proba) < 2 {
		return out, fmt.Errorf("probability distribution has %d entries, want at least 2", len(proba))
	}
	p1 := proba[1]
	if math.IsNaN(p1) || p1 < 0 || p1 > 1 {
		return out, fmt.Errorf("probability %v outside [0, 1]", p1)
	}
	return scored{class: class, probability: p1}, nil
}

func cacheKey(version uint64, model string, features []float64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(version, 10))
	b.WriteByte('|')
	b.WriteString(model)
	for _, f := range features {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return b.String()
}
