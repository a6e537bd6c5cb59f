// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes Prometheus collectors for the sync client and the
// backend. Collectors implements the recorder interfaces of syncer, media and
// server so none of those packages depends on Prometheus directly.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/syncer"
)

const namespace = "gymsync"

// Collectors groups every metric of the module.
type Collectors struct {
	syncRows      *prometheus.CounterVec
	syncFailures  *prometheus.CounterVec
	passDuration  *prometheus.HistogramVec
	passErrors    *prometheus.CounterVec
	mediaUploads  *prometheus.CounterVec
	requests      *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
	serverUpserts *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg means
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collectors{
		syncRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "rows_total",
			Help:      "Rows pushed to or pulled from the remote store, by operation and table.",
		}, []string{"op", "table"}),
		syncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "row_failures_total",
			Help:      "Rows left dirty by a push pass, by table.",
		}, []string{"op", "table"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of whole push and pull passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"op"}),
		passErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pass_errors_total",
			Help:      "Push and pull passes that ended with an error.",
		}, []string{"op"}),
		mediaUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "uploads_total",
			Help:      "Media uploads by bucket and result.",
		}, []string{"bucket", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		serverUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "upserts_total",
			Help:      "Row upserts received by the backend, by table and result.",
		}, []string{"table", "result"}),
	}
	reg.MustRegister(c.syncRows, c.syncFailures, c.passDuration, c.passErrors,
		c.mediaUploads, c.requests, c.requestTime, c.serverUpserts)
	return c
}

// ObservePass implements syncer.PassMetricsRecorder.
func (c *Collectors) ObservePass(_ context.Context, timing syncer.PassTiming) {
	if timing.Table == syncer.MetricsTableAll {
		c.passDuration.WithLabelValues(timing.Operation).Observe(timing.Duration.Seconds())
		if timing.Error {
			c.passErrors.WithLabelValues(timing.Operation).Inc()
		}
		return
	}
	if timing.Rows > 0 {
		c.syncRows.WithLabelValues(timing.Operation, timing.Table).Add(float64(timing.Rows))
	}
	if timing.Failed > 0 {
		c.syncFailures.WithLabelValues(timing.Operation, timing.Table).Add(float64(timing.Failed))
	}
}

// ObserveUpload implements media.Recorder.
func (c *Collectors) ObserveUpload(bucket string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.mediaUploads.WithLabelValues(bucket, result).Inc()
}

// ObserveRequest records one served HTTP request.
func (c *Collectors) ObserveRequest(route string, status int, d time.Duration) {
	c.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.requestTime.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveUpsert records the outcome of a backend row upsert.
func (c *Collectors) ObserveUpsert(table, result string) {
	c.serverUpserts.WithLabelValues(table, result).Inc()
}
