// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exporter

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Thermoquad/r48ctl/pkg/r48"
	"github.com/google/renameio/v2"
)

// Default textfile settings
const (
	DefaultMetric   = "R48_RECTIFIER"
	DefaultTextfile = "/ramdisk/R48_RECTIFIER.prom"
)

// Textfile writes snapshots in the node_exporter textfile format.
// Each publish writes a temporary file next to the target and renames it
// over the target, so readers never see a partial file.
type Textfile struct {
	path   string
	metric string
}

// NewTextfile creates a textfile publisher. An empty metric uses
// DefaultMetric.
func NewTextfile(path, metric string) *Textfile {
	if metric == "" {
		metric = DefaultMetric
	}
	return &Textfile{path: path, metric: metric}
}

// Path returns the published file path.
func (t *Textfile) Path() string {
	return t.path
}

// FormatTextfile renders one line per property in tag order, e.g.
// R48_RECTIFIER{mode="outputV"} 53.5
func FormatTextfile(metric string, s r48.Snapshot) string {
	var b strings.Builder
	for _, p := range r48.Properties() {
		fmt.Fprintf(&b, "%s{mode=%q} %s\n", metric, p.Label(), strconv.FormatFloat(s.Get(p), 'g', -1, 64))
	}
	return b.String()
}

func (t *Textfile) Publish(_ context.Context, s r48.Snapshot) error {
	pending, err := renameio.NewPendingFile(t.path,
		renameio.WithTempDir(filepath.Dir(t.path)),
		renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", t.path, err)
	}
	defer pending.Cleanup()

	if _, err := pending.WriteString(FormatTextfile(t.metric, s)); err != nil {
		return fmt.Errorf("failed to write %s: %w", t.path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to replace %s: %w", t.path, err)
	}
	return nil
}
