// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/r48"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func testSnapshot() r48.Snapshot {
	return r48.Snapshot{
		Values: [r48.NumProperties]float64{53.5, 12.25, 60.5, 31, 229.5},
		Time:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// ============================================================
// Textfile Tests
// ============================================================

func TestFormatTextfile(t *testing.T) {
	got := FormatTextfile(DefaultMetric, testSnapshot())
	want := `R48_RECTIFIER{mode="outputV"} 53.5
R48_RECTIFIER{mode="outputI"} 12.25
R48_RECTIFIER{mode="limitI"} 60.5
R48_RECTIFIER{mode="temp"} 31
R48_RECTIFIER{mode="inputV"} 229.5
`
	if got != want {
		t.Errorf("FormatTextfile() =\n%s\nwant\n%s", got, want)
	}
}

func TestTextfile_Publish(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "R48_RECTIFIER.prom")
	tf := NewTextfile(path, "")

	if err := tf.Publish(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("file has %d lines, want 5:\n%s", len(lines), data)
	}

	// Second publish replaces the file; no temporary files remain.
	s := testSnapshot()
	s.Values[0] = 48
	if err := tf.Publish(context.Background(), s); err != nil {
		t.Fatalf("second Publish failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if !strings.HasPrefix(string(data), `R48_RECTIFIER{mode="outputV"} 48`+"\n") {
		t.Errorf("file not replaced:\n%s", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "R48_RECTIFIER.prom" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contains %v, want only the published file", names)
	}
}

func TestTextfile_PublishMissingDir(t *testing.T) {
	tf := NewTextfile(filepath.Join(t.TempDir(), "missing", "out.prom"), "X")
	if err := tf.Publish(context.Background(), testSnapshot()); err == nil {
		t.Error("expected error for missing directory")
	}
}

// ============================================================
// Prometheus Tests
// ============================================================

func TestPrometheus_Publish(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPrometheus(reg, "")
	if err != nil {
		t.Fatalf("NewPrometheus failed: %v", err)
	}

	s := testSnapshot()
	if err := p.Publish(context.Background(), s); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, prop := range r48.Properties() {
		if got := testutil.ToFloat64(p.values.WithLabelValues(prop.Label())); got != s.Get(prop) {
			t.Errorf("gauge %s = %g, want %g", prop.Label(), got, s.Get(prop))
		}
	}
	if got := testutil.ToFloat64(p.snapshots); got != 1 {
		t.Errorf("snapshots counter = %g, want 1", got)
	}
	if got := testutil.ToFloat64(p.updated); got != float64(s.Time.Unix()) {
		t.Errorf("timestamp gauge = %g, want %d", got, s.Time.Unix())
	}
	if n := testutil.CollectAndCount(p.values); n != r48.NumProperties {
		t.Errorf("gauge series = %d, want %d", n, r48.NumProperties)
	}
}

func TestPrometheus_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheus(reg, "r48"); err != nil {
		t.Fatalf("first NewPrometheus failed: %v", err)
	}
	if _, err := NewPrometheus(reg, "r48"); err == nil {
		t.Error("expected error registering the same metrics twice")
	}
}

// ============================================================
// Redis Tests
// ============================================================

type fakeRedis struct {
	mu         sync.Mutex
	published  map[string][]string
	lists      map[string][]string
	trims      int
	publishErr error
	closed     bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{published: map[string][]string{}, lists: map[string][]string{}}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return redis.NewIntResult(0, f.publishErr)
	}
	f.published[channel] = append(f.published[channel], string(message.([]byte)))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append([]string{string(v.([]byte))}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) LTrim(_ context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trims++
	if l := f.lists[key]; int64(len(l)) > stop+1 {
		f.lists[key] = l[start : stop+1]
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedis_Publish(t *testing.T) {
	fake := newFakeRedis()
	logger, _ := logtest.NewNullLogger()
	r := NewRedis(fake, RedisConfig{History: 2}, logger)

	for i := 0; i < 3; i++ {
		s := testSnapshot()
		s.Values[0] = float64(50 + i)
		if err := r.Publish(context.Background(), s); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}

	msgs := fake.published["r48:snapshots"]
	if len(msgs) != 3 {
		t.Fatalf("published %d messages, want 3", len(msgs))
	}

	var m SnapshotMessage
	if err := json.Unmarshal([]byte(msgs[2]), &m); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	if m.OutputVoltage != 52 || m.InputVoltage != 229.5 || m.Time != "2025-06-01T12:00:00.000Z" {
		t.Errorf("message = %+v", m)
	}

	history := fake.lists["r48:snapshots:history"]
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0] != msgs[2] {
		t.Error("history head is not the newest snapshot")
	}

	r.Close()
	if !fake.closed {
		t.Error("Close did not close the client")
	}
}

func TestRedis_NoHistory(t *testing.T) {
	fake := newFakeRedis()
	logger, _ := logtest.NewNullLogger()
	r := NewRedis(fake, RedisConfig{Channel: "rect"}, logger)

	if err := r.Publish(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(fake.published["rect"]) != 1 {
		t.Error("snapshot not published on configured channel")
	}
	if len(fake.lists) != 0 || fake.trims != 0 {
		t.Error("history written with History=0")
	}
}

func TestRedis_PublishError(t *testing.T) {
	fake := newFakeRedis()
	fake.publishErr = errors.New("connection refused")
	logger, _ := logtest.NewNullLogger()
	r := NewRedis(fake, RedisConfig{History: 10}, logger)

	if err := r.Publish(context.Background(), testSnapshot()); err == nil {
		t.Fatal("expected publish error")
	}
}

// ============================================================
// Fanout Tests
// ============================================================

func TestFanout_ContinuesPastFailure(t *testing.T) {
	errA := errors.New("a failed")
	var calls []string
	f := Fanout{
		PublisherFunc(func(context.Context, r48.Snapshot) error {
			calls = append(calls, "a")
			return errA
		}),
		PublisherFunc(func(context.Context, r48.Snapshot) error {
			calls = append(calls, "b")
			return nil
		}),
	}

	err := f.Publish(context.Background(), testSnapshot())
	if !errors.Is(err, errA) {
		t.Errorf("Publish() = %v, want to wrap %v", err, errA)
	}
	if strings.Join(calls, ",") != "a,b" {
		t.Errorf("calls = %v, want [a b]", calls)
	}

	if err := (Fanout{}).Publish(context.Background(), testSnapshot()); err != nil {
		t.Errorf("empty Fanout Publish() = %v, want nil", err)
	}
}
