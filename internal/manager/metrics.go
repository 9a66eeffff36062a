package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"inferd/pkg/types"
)

// Metrics holds the model lifecycle collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	loadsTotal       *prometheus.CounterVec
	fetchSeconds     *prometheus.HistogramVec
	predictSeconds   *prometheus.HistogramVec
	loadedModels     *prometheus.GaugeVec
	evictionsTotal   *prometheus.CounterVec
	admissionRejects *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	mt := &Metrics{
		loadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "inferd",
				Subsystem: "model",
				Name:      "loads_total",
				Help:      "Total number of model loads",
			},
			[]string{"family"},
		),
		fetchSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "inferd",
				Subsystem: "model",
				Name:      "fetch_seconds",
				Help:      "Duration of artifact fetches in seconds",
				Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"family"},
		),
		predictSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "inferd",
				Subsystem: "model",
				Name:      "predict_seconds",
				Help:      "Duration of predictions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"family", "status"},
		),
		loadedModels: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "inferd",
				Subsystem: "model",
				Name:      "loaded",
				Help:      "Models currently loaded",
			},
			[]string{"family"},
		),
		evictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "inferd",
				Subsystem: "model",
				Name:      "evictions_total",
				Help:      "Total number of LRU evictions",
			},
			[]string{"family"},
		),
		admissionRejects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "inferd",
				Subsystem: "admission",
				Name:      "rejections_total",
				Help:      "Requests rejected by per-model admission",
			},
			[]string{"reason"},
		),
	}
	if reg != nil {
		reg.MustRegister(mt.loadsTotal, mt.fetchSeconds, mt.predictSeconds, mt.loadedModels, mt.evictionsTotal, mt.admissionRejects)
	}
	return mt
}

func (mt *Metrics) backpressure(reason string) {
	if mt == nil {
		return
	}
	mt.admissionRejects.WithLabelValues(reason).Inc()
}

func (mt *Metrics) observeFetch(family types.Family, d time.Duration) {
	if mt == nil {
		return
	}
	mt.fetchSeconds.WithLabelValues(string(family)).Observe(d.Seconds())
}

func (mt *Metrics) loaded(family types.Family) {
	if mt == nil {
		return
	}
	mt.loadsTotal.WithLabelValues(string(family)).Inc()
	mt.loadedModels.WithLabelValues(string(family)).Inc()
}

func (mt *Metrics) unloaded(family types.Family) {
	if mt == nil {
		return
	}
	mt.loadedModels.WithLabelValues(string(family)).Dec()
}

func (mt *Metrics) evicted(family types.Family) {
	if mt == nil {
		return
	}
	mt.evictionsTotal.WithLabelValues(string(family)).Inc()
	mt.loadedModels.WithLabelValues(string(family)).Dec()
}

func (mt *Metrics) observePredict(family types.Family, d time.Duration, err error) {
	if mt == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	mt.predictSeconds.WithLabelValues(string(family), status).Observe(d.Seconds())
}
