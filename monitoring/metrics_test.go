package monitoring

import (
	"testing"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartrisk/predict"
)

func TestPredictionMetricsSnapshot(t *testing.T) {
	m := NewPredictionMetrics()
	m.Observe("logistic_regression", predict.OutcomeOK, false, 2*time.Millisecond)
	m.Observe("logistic_regression", predict.OutcomeOK, true, 4*time.Millisecond)
	m.Observe("logistic_regression", predict.OutcomeInvalid, false, 0)
	m.Observe("gradient_boosting", predict.OutcomeNotFound, false, 0)
	m.Observe("", predict.OutcomeUnavailable, false, 0)

	snap := m.Snapshot()
	assert.Equal(t, int64(5), snap.Requests)
	assert.Equal(t, int64(2), snap.Successes)
	assert.Equal(t, int64(3), snap.Failures)
	assert.Equal(t, int64(1), snap.CacheHits)
	require.Len(t, snap.Models, 2)

	lr := snap.Models[0]
	assert.Equal(t, "logistic_regression", lr.Name)
	assert.Equal(t, int64(3), lr.Requests)
	assert.Equal(t, int64(1), lr.Failures[predict.OutcomeInvalid])
	assert.InDelta(t, 2.0, lr.MeanLatencyMs, 1e-9)
	assert.InDelta(t, 4.0, lr.P95LatencyMs, 1e-9)

	unknown := snap.Models[1]
	assert.Equal(t, "unknown", unknown.Name)
	assert.Equal(t, map[string]int64{predict.OutcomeNotFound: 1, predict.OutcomeUnavailable: 1}, unknown.Failures)
	assert.Contains(t, snap.System, "goroutines")
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewPredictionMetrics()
	m.Observe("knn", predict.OutcomeInference, false, 0)
	snap := m.Snapshot()
	snap.Models[0].Failures[predict.OutcomeInference] = 99

	assert.Equal(t, int64(1), m.Snapshot().Models[0].Failures[predict.OutcomeInference])
}

func TestObserveRegistersSeries(t *testing.T) {
	m := NewPredictionMetrics()
	m.Observe("knn", predict.OutcomeOK, true, time.Millisecond)
	m.Observe("knn", predict.OutcomeInference, false, time.Millisecond)

	reg := m.Registry()
	requests, ok := reg.Get("predictions.knn.requests").(gometrics.Counter)
	require.True(t, ok)
	assert.Equal(t, int64(2), requests.Count())
	failures, ok := reg.Get("predictions.knn.failures.inference").(gometrics.Counter)
	require.True(t, ok)
	assert.Equal(t, int64(1), failures.Count())
	latency, ok := reg.Get("predictions.knn.latency").(gometrics.Timer)
	require.True(t, ok)
	assert.Equal(t, int64(2), latency.Count())
	assert.Nil(t, reg.Get("predictions.knn.failures.invalid"))
}

func TestExportPrometheus(t *testing.T) {
	m := NewPredictionMetrics()
	m.Observe("knn", predict.OutcomeOK, true, time.Millisecond)
	m.Observe("knn", predict.OutcomeInference, false, time.Millisecond)

	out := m.ExportPrometheus()
	assert.Contains(t, out, `heartrisk_predictions_total{model="knn"} 2`)
	assert.Contains(t, out, `heartrisk_prediction_failures_total{model="knn",kind="inference"} 1`)
	assert.Contains(t, out, `heartrisk_prediction_cache_hits_total{model="knn"} 1`)
	assert.Contains(t, out, "# TYPE heartrisk_prediction_latency_ms_mean gauge")
	assert.Contains(t, out, `heartrisk_prediction_latency_ms_p95{model="knn"} 1.000000`)
}
