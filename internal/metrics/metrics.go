package metrics

import (
	"net/http"
	"strconv"
	"time"

	"agriprice/domain/model"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agriprice"

// Collector exposes Prometheus metrics for HTTP traffic, predictions and
// training passes.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	predictionTotal    *prometheus.CounterVec
	predictionDuration prometheus.Histogram
	trainingTotal      *prometheus.CounterVec
	trainingDuration   prometheus.Histogram
	modelR2            *prometheus.GaugeVec
	modelMAE           *prometheus.GaugeVec
	datasetSamples     prometheus.Gauge
	engineVersion      prometheus.Gauge
}

// NewCollector constructs a collector on a private registry
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"server", "method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"server", "method", "path", "status"}),
		predictionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "predictions_total",
			Help:      "Predictions served, by model and cache outcome.",
		}, []string{"model", "cache"}),
		predictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "prediction_duration_seconds",
			Help:      "Latency of prediction requests including cache lookups.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		trainingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "training_runs_total",
			Help:      "Training passes by outcome.",
		}, []string{"status"}),
		trainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "training_duration_seconds",
			Help:      "Wall time of training passes.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		modelR2: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "r2_score",
			Help:      "Coefficient of determination of each variant on its training set.",
		}, []string{"variant"}),
		modelMAE: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "mae",
			Help:      "Mean absolute error of each variant on its training set.",
		}, []string{"variant"}),
		datasetSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "samples",
			Help:      "Observations in the serving model's training set.",
		}),
		engineVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "version",
			Help:      "Training version of the serving model.",
		}),
	}

	for _, collector := range []prometheus.Collector{
		c.requestDuration, c.requestTotal,
		c.predictionTotal, c.predictionDuration,
		c.trainingTotal, c.trainingDuration,
		c.modelR2, c.modelMAE, c.datasetSamples, c.engineVersion,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Registry exposes the underlying registry, mainly for tests
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObservePrediction records one served prediction
func (c *Collector) ObservePrediction(modelName string, cacheHit bool, elapsed time.Duration) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	c.predictionTotal.WithLabelValues(modelName, cache).Inc()
	c.predictionDuration.Observe(elapsed.Seconds())
}

// ObserveTraining records the outcome of a training pass
func (c *Collector) ObserveTraining(status string, elapsed time.Duration) {
	c.trainingTotal.WithLabelValues(status).Inc()
	c.trainingDuration.Observe(elapsed.Seconds())
}

// SetModelMetrics publishes the per-variant scores of the serving model
func (c *Collector) SetModelMetrics(metrics []model.ModelMetrics) {
	for _, m := range metrics {
		if !m.Trained {
			continue
		}
		c.modelMAE.WithLabelValues(string(m.Variant)).Set(m.MAE)
		if m.R2Defined {
			c.modelR2.WithLabelValues(string(m.Variant)).Set(m.R2Score)
		} else {
			c.modelR2.DeleteLabelValues(string(m.Variant))
		}
	}
}

// SetServingModel publishes the dataset size and version of the serving model
func (c *Collector) SetServingModel(samples int, version uint64) {
	c.datasetSamples.Set(float64(samples))
	c.engineVersion.Set(float64(version))
}

// InstrumentHandler wraps a chi-routed handler to record HTTP metrics. The
// path label is the matched route pattern.
func (c *Collector) InstrumentHandler(server string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}
			c.observeRequest(server, r.Method, path, rw.status, time.Since(start))
		})
	}
}

// GinMiddleware records HTTP metrics for gin routes
func (c *Collector) GinMiddleware(server string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		c.observeRequest(server, ctx.Request.Method, path, ctx.Writer.Status(), time.Since(start))
	}
}

func (c *Collector) observeRequest(server, method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	c.requestTotal.WithLabelValues(server, method, path, code).Inc()
	c.requestDuration.WithLabelValues(server, method, path, code).Observe(elapsed.Seconds())
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
