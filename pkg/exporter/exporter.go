// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package exporter publishes rectifier snapshots to monitoring systems.
//
// It includes:
//   - Textfile: node_exporter textfile collector output, replaced atomically
//   - Prometheus: gauges served over HTTP
//   - Redis: JSON snapshots on a pub/sub channel with a capped history list
//   - Fanout: publishes to several publishers in turn
package exporter

import (
	"context"
	"errors"

	"github.com/Thermoquad/r48ctl/pkg/r48"
)

// Publisher receives each completed snapshot.
type Publisher interface {
	Publish(ctx context.Context, s r48.Snapshot) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, s r48.Snapshot) error

func (f PublisherFunc) Publish(ctx context.Context, s r48.Snapshot) error {
	return f(ctx, s)
}

// Fanout publishes to every publisher, continuing past failures. The
// returned error joins all failures.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, s r48.Snapshot) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
