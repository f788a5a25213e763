// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exporter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/r48"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Prometheus exposes the latest snapshot as gauges.
type Prometheus struct {
	values    *prometheus.GaugeVec
	updated   prometheus.Gauge
	snapshots prometheus.Counter
}

// NewPrometheus creates the gauges and registers them with reg. The
// metric name is lower-cased to follow Prometheus conventions.
func NewPrometheus(reg prometheus.Registerer, metric string) (*Prometheus, error) {
	if metric == "" {
		metric = DefaultMetric
	}
	name := strings.ToLower(metric)

	p := &Prometheus{
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: "Latest rectifier telemetry value by mode.",
		}, []string{"mode"}),
		updated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name + "_last_snapshot_timestamp_seconds",
			Help: "Unix time of the latest complete snapshot.",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: name + "_snapshots_total",
			Help: "Complete snapshots received.",
		}),
	}

	for _, c := range []prometheus.Collector{p.values, p.updated, p.snapshots} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return p, nil
}

func (p *Prometheus) Publish(_ context.Context, s r48.Snapshot) error {
	for _, prop := range r48.Properties() {
		p.values.WithLabelValues(prop.Label()).Set(s.Get(prop))
	}
	p.updated.Set(float64(s.Time.UnixNano()) / 1e9)
	p.snapshots.Inc()
	return nil
}

// Serve runs a /metrics endpoint for g on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
