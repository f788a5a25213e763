// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package exporter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Thermoquad/r48ctl/pkg/r48"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisClient is the subset of *redis.Client used by Redis.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// RedisConfig configures the Redis publisher.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string // default "r48:snapshots"
	History  int64  // list length kept under "<channel>:history"; 0 disables
}

// Redis publishes snapshots as JSON on a pub/sub channel and keeps a
// capped history list.
type Redis struct {
	client  RedisClient
	channel string
	history int64
	log     logrus.FieldLogger
}

// SnapshotMessage is the JSON form of a snapshot.
type SnapshotMessage struct {
	Time          string  `json:"time"`
	OutputVoltage float64 `json:"output_voltage"`
	OutputCurrent float64 `json:"output_current"`
	CurrentLimit  float64 `json:"current_limit"`
	Temperature   float64 `json:"temperature"`
	InputVoltage  float64 `json:"input_voltage"`
}

// NewSnapshotMessage converts s for publishing.
func NewSnapshotMessage(s r48.Snapshot) SnapshotMessage {
	return SnapshotMessage{
		Time:          s.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		OutputVoltage: s.Get(r48.OutputVoltage),
		OutputCurrent: s.Get(r48.OutputCurrent),
		CurrentLimit:  s.Get(r48.CurrentLimit),
		Temperature:   s.Get(r48.Temperature),
		InputVoltage:  s.Get(r48.InputVoltage),
	}
}

// DialRedis connects to Redis and checks the connection.
func DialRedis(ctx context.Context, cfg RedisConfig, log logrus.FieldLogger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	log.WithField("addr", cfg.Addr).Info("redis connected")

	return NewRedis(client, cfg, log), nil
}

// NewRedis wraps an existing client.
func NewRedis(client RedisClient, cfg RedisConfig, log logrus.FieldLogger) *Redis {
	if cfg.Channel == "" {
		cfg.Channel = "r48:snapshots"
	}
	return &Redis{
		client:  client,
		channel: cfg.Channel,
		history: cfg.History,
		log:     log,
	}
}

func (r *Redis) Publish(ctx context.Context, s r48.Snapshot) error {
	data, err := json.Marshal(NewSnapshotMessage(s))
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	if r.history <= 0 {
		return nil
	}

	key := r.channel + ":history"
	if err := r.client.LPush(ctx, key, data).Err(); err != nil {
		r.log.WithError(err).Warn("failed to store snapshot history")
		return nil
	}
	if err := r.client.LTrim(ctx, key, 0, r.history-1).Err(); err != nil {
		r.log.WithError(err).Warn("failed to trim snapshot history")
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
