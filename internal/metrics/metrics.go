// Package metrics exposes prometheus collectors for upload and processing
// outcomes. A nil *Client is valid and records nothing, so library code can
// take one unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Client struct {
	registry *prometheus.Registry

	uploadTotal     *prometheus.CounterVec
	uploadBytes     prometheus.Counter
	uploadDuration  *prometheus.HistogramVec
	uploadInFlight  prometheus.Gauge
	foldersTotal    *prometheus.CounterVec
	pollTotal       *prometheus.CounterVec
	pollsInFlight   prometheus.Gauge
	processDuration *prometheus.HistogramVec
	watchEvents     *prometheus.CounterVec
}

func New() *Client {
	registry := prometheus.NewRegistry()

	uploadTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prism",
			Subsystem: "upload",
			Name:      "files_total",
			Help:      "Uploaded files by outcome.",
		},
		[]string{"status"},
	)
	uploadBytes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "prism",
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Bytes sent in successful uploads.",
		},
	)
	uploadDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "prism",
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Upload request duration by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	uploadInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "prism",
			Subsystem: "upload",
			Name:      "in_flight",
			Help:      "Upload requests currently in flight.",
		},
	)
	foldersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prism",
			Subsystem: "upload",
			Name:      "folders_total",
			Help:      "Folder create calls issued by the upload pipeline, by outcome.",
		},
		[]string{"status"},
	)
	pollTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prism",
			Subsystem: "poller",
			Name:      "chains_total",
			Help:      "Finished poll chains by final status.",
		},
		[]string{"status"},
	)
	pollsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "prism",
			Subsystem: "poller",
			Name:      "chains_in_flight",
			Help:      "Poll chains currently running.",
		},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "prism",
			Subsystem: "poller",
			Name:      "processing_duration_seconds",
			Help:      "Time from poll registration to a terminal status.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"status"},
	)
	watchEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prism",
			Subsystem: "watch",
			Name:      "events_total",
			Help:      "Filesystem events seen by the watcher, by action.",
		},
		[]string{"action"},
	)

	registry.MustRegister(uploadTotal, uploadBytes, uploadDuration, uploadInFlight,
		foldersTotal, pollTotal, pollsInFlight, processDuration, watchEvents)

	return &Client{
		registry:        registry,
		uploadTotal:     uploadTotal,
		uploadBytes:     uploadBytes,
		uploadDuration:  uploadDuration,
		uploadInFlight:  uploadInFlight,
		foldersTotal:    foldersTotal,
		pollTotal:       pollTotal,
		pollsInFlight:   pollsInFlight,
		processDuration: processDuration,
		watchEvents:     watchEvents,
	}
}

func (m *Client) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Client) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Client) StartUpload() {
	if m == nil {
		return
	}
	m.uploadInFlight.Inc()
}

func (m *Client) FinishUpload(size int64, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.uploadInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	} else {
		m.uploadBytes.Add(float64(size))
	}
	m.uploadTotal.WithLabelValues(status).Inc()
	m.uploadDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *Client) FolderCreated(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.foldersTotal.WithLabelValues(status).Inc()
}

func (m *Client) StartPoll() {
	if m == nil {
		return
	}
	m.pollsInFlight.Inc()
}

// FinishPoll records how a chain ended: a terminal backend status,
// "failed" for a poll error, or "cancelled".
func (m *Client) FinishPoll(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pollsInFlight.Dec()
	m.pollTotal.WithLabelValues(status).Inc()
	if status != "cancelled" {
		m.processDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	}
}

func (m *Client) WatchEvent(action string) {
	if m == nil {
		return
	}
	m.watchEvents.WithLabelValues(action).Inc()
}
