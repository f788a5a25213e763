// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/config"
	"github.com/Thermoquad/r48ctl/pkg/exporter"
	"github.com/Thermoquad/r48ctl/pkg/link"
	"github.com/Thermoquad/r48ctl/pkg/r48"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	monitorFlags       config.Config
	monitorStatsPeriod time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the rectifier and publish telemetry",
	Long: `Request telemetry from the rectifier at a fixed interval and publish
every complete snapshot.

A snapshot is complete once output voltage, output current, current limit,
temperature and input voltage have all been received. Snapshots are
published to every enabled sink:

  textfile    Prometheus node_exporter textfile (--textfile, default
              /ramdisk/R48_RECTIFIER.prom), replaced atomically
  prometheus  /metrics endpoint (--listen :9480)
  redis       JSON on a pub/sub channel plus optional history list
              (--redis localhost:6379)

With --link the SocketCAN interface is configured with ip(8) first, which
needs root or CAP_NET_ADMIN.

Runs until interrupted. Failures to publish or to send a request are
logged and retried on the next cycle.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	flags := monitorCmd.Flags()
	flags.DurationVar(&monitorFlags.PollInterval, "interval", r48.DefaultPollInterval, "Telemetry request interval (1s-60s)")
	flags.BoolVar(&monitorFlags.Link.Configure, "link", false, "Configure the CAN interface before starting")
	flags.IntVar(&monitorFlags.Link.RestartMS, "restart-ms", link.DefaultRestartMS, "Bus-off restart delay for --link")
	flags.StringVar(&monitorFlags.Textfile.Path, "textfile", exporter.DefaultTextfile, "Textfile to publish (empty disables)")
	flags.StringVar(&monitorFlags.Textfile.Metric, "metric", exporter.DefaultMetric, "Metric name")
	flags.StringVar(&monitorFlags.Prometheus.Listen, "listen", "", "Serve /metrics on this address (empty disables)")
	flags.StringVar(&monitorFlags.Redis.Addr, "redis", "", "Redis address (empty disables)")
	flags.StringVar(&monitorFlags.Redis.Channel, "redis-channel", "r48:snapshots", "Redis pub/sub channel")
	flags.Int64Var(&monitorFlags.Redis.History, "redis-history", 0, "Snapshots kept in the Redis history list (0 disables)")
	flags.DurationVar(&monitorStatsPeriod, "stats-interval", time.Minute, "Statistics print interval (0 disables)")
}

// applyMonitorOverrides copies monitor flags set on the command line into
// dst.
func applyMonitorOverrides(dst, src *config.Config, changed func(name string) bool) {
	if changed("interval") {
		dst.PollInterval = src.PollInterval
	}
	if changed("link") {
		dst.Link.Configure = src.Link.Configure
	}
	if changed("restart-ms") {
		dst.Link.RestartMS = src.Link.RestartMS
	}
	if changed("textfile") {
		dst.Textfile.Path = src.Textfile.Path
	}
	if changed("metric") {
		dst.Textfile.Metric = src.Textfile.Metric
	}
	if changed("listen") {
		dst.Prometheus.Listen = src.Prometheus.Listen
	}
	if changed("redis") {
		dst.Redis.Addr = src.Redis.Addr
	}
	if changed("redis-channel") {
		dst.Redis.Channel = src.Redis.Channel
	}
	if changed("redis-history") {
		dst.Redis.History = src.Redis.History
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	applyMonitorOverrides(settings, &monitorFlags, cmd.Flags().Changed)
	if err := settings.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.Link.Configure {
		configureLink(ctx)
	}

	bus, connInfo, err := OpenBus()
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	defer bus.Close()

	m, err := r48.NewMonitor(bus, r48.MonitorConfig{
		Interval: settings.PollInterval,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	publisher, closers := buildPublishers(ctx)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	fmt.Printf("r48ctl - Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Interval: %s\n", m.Interval())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	snapshots := make(chan r48.Snapshot, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx, snapshots)
	}()

	var statsC <-chan time.Time
	if monitorStatsPeriod > 0 {
		ticker := time.NewTicker(monitorStatsPeriod)
		defer ticker.Stop()
		statsC = ticker.C
	}

	for {
		select {
		case snap := <-snapshots:
			logSnapshot(snap)
			if err := publisher.Publish(ctx, snap); err != nil {
				logger.WithError(err).Error("publish failed")
			}

		case <-statsC:
			stats := m.Stats()
			fmt.Print(stats.String())

		case err := <-done:
			stats := m.Stats()
			fmt.Print("\n" + stats.String())
			return err
		}
	}
}

// configureLink runs the ip(8) link setup. Failures are logged; opening
// the transport reports whether the link is usable.
func configureLink(ctx context.Context) {
	if settings.Transport != config.TransportSocketCAN {
		logger.WithField("transport", settings.Transport).Warn("link configuration only applies to socketcan, skipping")
		return
	}
	l := link.NewIPLink(nil, settings.Bitrate, settings.Link.RestartMS, logger)
	if err := l.Configure(ctx, settings.Interface); err != nil {
		logger.WithError(err).Error("link configuration failed")
	}
}

// buildPublishers creates every enabled sink. A sink that cannot be set
// up is logged and left out.
func buildPublishers(ctx context.Context) (exporter.Fanout, []io.Closer) {
	var (
		publishers exporter.Fanout
		closers    []io.Closer
	)

	if settings.Textfile.Path != "" {
		publishers = append(publishers, exporter.NewTextfile(settings.Textfile.Path, settings.Textfile.Metric))
		logger.WithField("path", settings.Textfile.Path).Info("textfile publisher enabled")
	}

	if settings.Prometheus.Listen != "" {
		reg := prometheus.NewRegistry()
		p, err := exporter.NewPrometheus(reg, settings.Textfile.Metric)
		if err != nil {
			logger.WithError(err).Error("prometheus publisher disabled")
		} else {
			publishers = append(publishers, p)
			go func() {
				if err := exporter.Serve(ctx, settings.Prometheus.Listen, reg, logger); err != nil {
					logger.WithError(err).Error("metrics server stopped")
				}
			}()
		}
	}

	if settings.Redis.Addr != "" {
		r, err := exporter.DialRedis(ctx, exporter.RedisConfig{
			Addr:     settings.Redis.Addr,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
			Channel:  settings.Redis.Channel,
			History:  settings.Redis.History,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("redis publisher disabled")
		} else {
			publishers = append(publishers, r)
			closers = append(closers, r)
		}
	}

	if len(publishers) == 0 {
		logger.Warn("no publishers enabled, snapshots are only logged")
	}
	return publishers, closers
}

func logSnapshot(s r48.Snapshot) {
	fields := logrus.Fields{}
	for _, p := range r48.Properties() {
		fields[p.Label()] = s.Get(p)
	}
	logger.WithFields(fields).Info("snapshot")
}
