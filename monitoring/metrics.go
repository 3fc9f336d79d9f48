// Package monitoring tracks prediction traffic and streams it to live clients.
package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"

	"heartrisk/predict"
)

// ModelStat counts traffic for one model.
type ModelStat struct {
	Name          string           `json:"name"`
	Requests      int64            `json:"requests"`
	Successes     int64            `json:"successes"`
	Failures      map[string]int64 `json:"failures"`
	CacheHits     int64            `json:"cache_hits"`
	MeanLatencyMs float64          `json:"mean_latency_ms"`
	P95LatencyMs  float64          `json:"p95_latency_ms"`
}

// Snapshot is the JSON body of the metrics endpoint.
type Snapshot struct {
	Uptime    string                 `json:"uptime"`
	Requests  int64                  `json:"requests"`
	Successes int64                  `json:"successes"`
	Failures  int64                  `json:"failures"`
	CacheHits int64                  `json:"cache_hits"`
	Models    []ModelStat            `json:"models"`
	System    map[string]interface{} `json:"system"`
}

type modelMetrics struct {
	requests  gometrics.Counter
	successes gometrics.Counter
	cacheHits gometrics.Counter
	latency   gometrics.Timer
	failures  map[string]gometrics.Counter
}

// PredictionMetrics implements predict.Observer. Every series lives in a
// go-metrics registry under "predictions.<model>.<series>".
type PredictionMetrics struct {
	mu        sync.RWMutex
	registry  gometrics.Registry
	models    map[string]*modelMetrics
	startTime time.Time
}

func NewPredictionMetrics() *PredictionMetrics {
	return &PredictionMetrics{
		registry:  gometrics.NewRegistry(),
		models:    make(map[string]*modelMetrics),
		startTime: time.Now(),
	}
}

// Registry exposes the underlying go-metrics registry.
func (m *PredictionMetrics) Registry() gometrics.Registry {
	return m.registry
}

// Observe records one prediction attempt. Unknown model names are grouped under "unknown"
// so clients cannot grow the table without bound.
func (m *PredictionMetrics) Observe(model, outcome string, cached bool, latency time.Duration) {
	if outcome == predict.OutcomeNotFound || outcome == predict.OutcomeUnavailable || model == "" {
		model = "unknown"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mm := m.model(model)
	mm.requests.Inc(1)
	mm.latency.Update(latency)
	if outcome == predict.OutcomeOK {
		mm.successes.Inc(1)
		if cached {
			mm.cacheHits.Inc(1)
		}
		return
	}
	failures, ok := mm.failures[outcome]
	if !ok {
		failures = gometrics.GetOrRegisterCounter(seriesName(model, "failures."+outcome), m.registry)
		mm.failures[outcome] = failures
	}
	failures.Inc(1)
}

// model must be called with mu held.
func (m *PredictionMetrics) model(name string) *modelMetrics {
	if mm, ok := m.models[name]; ok {
		return mm
	}
	mm := &modelMetrics{
		requests:  gometrics.GetOrRegisterCounter(seriesName(name, "requests"), m.registry),
		successes: gometrics.GetOrRegisterCounter(seriesName(name, "successes"), m.registry),
		cacheHits: gometrics.GetOrRegisterCounter(seriesName(name, "cache_hits"), m.registry),
		latency:   gometrics.GetOrRegisterTimer(seriesName(name, "latency"), m.registry),
		failures:  make(map[string]gometrics.Counter),
	}
	m.models[name] = mm
	return mm
}

func seriesName(model, series string) string {
	return "predictions." + model + "." + series
}

func (m *PredictionMetrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Uptime: time.Since(m.startTime).Round(time.Second).String(),
		Models: make([]ModelStat, 0, len(m.models)),
		System: systemStats(),
	}
	for name, mm := range m.models {
		latency := mm.latency.Snapshot()
		stat := ModelStat{
			Name:          name,
			Requests:      mm.requests.Count(),
			Successes:     mm.successes.Count(),
			CacheHits:     mm.cacheHits.Count(),
			Failures:      make(map[string]int64, len(mm.failures)),
			MeanLatencyMs: latency.Mean() / float64(time.Millisecond),
			P95LatencyMs:  latency.Percentile(0.95) / float64(time.Millisecond),
		}
		for kind, c := range mm.failures {
			stat.Failures[kind] = c.Count()
			snap.Failures += c.Count()
		}
		snap.Requests += stat.Requests
		snap.Successes += stat.Successes
		snap.CacheHits += stat.CacheHits
		snap.Models = append(snap.Models, stat)
	}
	sort.Slice(snap.Models, func(i, j int) bool {
		return snap.Models[i].Name < snap.Models[j].Name
	})
	return snap
}

// ExportPrometheus renders the counters in the Prometheus text format.
func (m *PredictionMetrics) ExportPrometheus() string {
	snap := m.Snapshot()
	var b strings.Builder

	b.WriteString("# HELP heartrisk_predictions_total Prediction requests by model.\n")
	b.WriteString("# TYPE heartrisk_predictions_total counter\n")
	for _, s := range snap.Models {
		fmt.Fprintf(&b, "heartrisk_predictions_total{model=%q} %d\n", s.Name, s.Requests)
	}

	b.WriteString("# HELP heartrisk_prediction_failures_total Failed predictions by model and kind.\n")
	b.WriteString("# TYPE heartrisk_prediction_failures_total counter\n")
	for _, s := range snap.Models {
		kinds := make([]string, 0, len(s.Failures))
		for k := range s.Failures {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "heartrisk_prediction_failures_total{model=%q,kind=%q} %d\n", s.Name, k, s.Failures[k])
		}
	}

	b.WriteString("# HELP heartrisk_prediction_cache_hits_total Predictions served from cache.\n")
	b.WriteString("# TYPE heartrisk_prediction_cache_hits_total counter\n")
	for _, s := range snap.Models {
		fmt.Fprintf(&b, "heartrisk_prediction_cache_hits_total{model=%q} %d\n", s.Name, s.CacheHits)
	}

	b.WriteString("# HELP heartrisk_prediction_latency_ms_mean Mean prediction latency in milliseconds.\n")
	b.WriteString("# TYPE heartrisk_prediction_latency_ms_mean gauge\n")
	for _, s := range snap.Models {
		fmt.Fprintf(&b, "heartrisk_prediction_latency_ms_mean{model=%q} %f\n", s.Name, s.MeanLatencyMs)
	}

	b.WriteString("# HELP heartrisk_prediction_latency_ms_p95 95th percentile prediction latency in milliseconds.\n")
	b.WriteString("# TYPE heartrisk_prediction_latency_ms_p95 gauge\n")
	for _, s := range snap.Models {
		fmt.Fprintf(&b, "heartrisk_prediction_latency_ms_p95{model=%q} %f\n", s.Name, s.P95LatencyMs)
	}
	return b.String()
}

func systemStats() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"heap_alloc": mem.HeapAlloc,
		"heap_sys":   mem.HeapSys,
		"gc_count":   mem.NumGC,
		"num_cpu":    runtime.NumCPU(),
	}
}
