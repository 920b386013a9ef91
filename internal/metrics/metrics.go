package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ndisview/internal/chain"
	"ndisview/internal/projector"
)

type Registry struct {
	reg *prometheus.Registry

	RecordsRead      prometheus.Counter
	Duplicates       prometheus.Counter
	Filtered         prometheus.Counter
	RowsEmitted      prometheus.Counter
	ProjectionErrors *prometheus.CounterVec
	ReadLatencySec   prometheus.Histogram
	IntentsSubmitted prometheus.Counter
	IntentsFailed    *prometheus.CounterVec
	SubmitLatencySec prometheus.Histogram
	HTTPRequests     *prometheus.CounterVec
	HTTPLatencySec   *prometheus.HistogramVec
	LastReadUnixSec  prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	read := prometheus.NewCounter(prometheus.CounterOpts{Name: "ndisview_records_read_total"})
	dups := prometheus.NewCounter(prometheus.CounterOpts{Name: "ndisview_duplicates_total"})
	filtered := prometheus.NewCounter(prometheus.CounterOpts{Name: "ndisview_filtered_total"})
	emitted := prometheus.NewCounter(prometheus.CounterOpts{Name: "ndisview_rows_emitted_total"})
	projErrs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ndisview_projection_errors_total"}, []string{"kind"})
	readLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ndisview_read_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})
	submitted := prometheus.NewCounter(prometheus.CounterOpts{Name: "ndisview_intents_submitted_total"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ndisview_intents_failed_total"}, []string{"kind"})
	submitLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ndisview_submit_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})
	httpReqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ndisview_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})
	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ndisview_http_request_duration_seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
	lastRead := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ndisview_last_read_unix_seconds"})

	r.MustRegister(read, dups, filtered, emitted, projErrs, readLatency, submitted, failed, submitLatency, httpReqs, httpLatency, lastRead)
	return &Registry{
		reg:              r,
		RecordsRead:      read,
		Duplicates:       dups,
		Filtered:         filtered,
		RowsEmitted:      emitted,
		ProjectionErrors: projErrs,
		ReadLatencySec:   readLatency,
		IntentsSubmitted: submitted,
		IntentsFailed:    failed,
		SubmitLatencySec: submitLatency,
		HTTPRequests:     httpReqs,
		HTTPLatencySec:   httpLatency,
		LastReadUnixSec:  lastRead,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// ObserveRead records one chain read.
func (r *Registry) ObserveRead(started time.Time) {
	r.ReadLatencySec.Observe(time.Since(started).Seconds())
	r.LastReadUnixSec.SetToCurrentTime()
}

// ObserveProjection records a projection pass and its failure, if any.
func (r *Registry) ObserveProjection(st projector.Stats, err error) {
	if err != nil {
		r.ProjectionErrors.WithLabelValues(projectionErrorKind(err)).Inc()
		return
	}
	r.RecordsRead.Add(float64(st.Read))
	r.Duplicates.Add(float64(st.Duplicates))
	r.Filtered.Add(float64(st.Filtered))
	r.RowsEmitted.Add(float64(st.Emitted))
}

// ObserveSubmit records one intent submission.
func (r *Registry) ObserveSubmit(started time.Time, err error) {
	r.SubmitLatencySec.Observe(time.Since(started).Seconds())
	if err != nil {
		r.IntentsFailed.WithLabelValues(string(chain.Classify(err).Kind)).Inc()
		return
	}
	r.IntentsSubmitted.Inc()
}

// ObserveHTTP records one served request.
func (r *Registry) ObserveHTTP(method, endpoint string, status int, started time.Time) {
	r.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	r.HTTPLatencySec.WithLabelValues(method, endpoint).Observe(time.Since(started).Seconds())
}

func projectionErrorKind(err error) string {
	var mal *projector.MalformedRecordError
	var unk *projector.UnknownStatusError
	switch {
	case errors.As(err, &mal):
		return "malformed"
	case errors.As(err, &unk):
		return "unknown_status"
	case errors.Is(err, projector.ErrUnknownRole), errors.Is(err, projector.ErrUnknownMode):
		return "bad_query"
	}
	return "other"
}
