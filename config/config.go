/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the engine's tunable policy knobs from YAML,
// the way sptp's client.ReadConfig loads measurement configuration:
// a struct of yaml-tagged fields with spec-mandated zero-value
// defaults filled in by New before any file is read.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/easydriveway/meshcore/queue"
)

// Config holds every tunable named in spec.md with a concrete default:
// retry/backoff policy, ack timeout, try budgets, queue depths,
// heartbeat cadence, and virtual-bank sizing. Sequence-window and
// Await/Acked ring sizes are fixed constants in package stack, not
// fields here.
type Config struct {
	// Backoff is the per-attempt retry delay schedule in milliseconds.
	// Defaults to the spec's 10/20/40ms capped schedule.
	BackoffMs []uint64 `yaml:"backoff_ms"`

	// AckTimeoutMs bounds how long a reliable send awaits a reply
	// before it is treated as a timeout needing retry.
	AckTimeoutMs uint64 `yaml:"ack_timeout_ms"`

	// ReliableTries and BestEffortTries are the tries_left budget for
	// reliable and non-reliable TxItems respectively.
	ReliableTries   int `yaml:"reliable_tries"`
	BestEffortTries int `yaml:"best_effort_tries"`

	// RXQueueDepth, TXQueueDepth, and AckEventQueueDepth size the
	// bounded channels the radio shim and Stack exchange work through.
	RXQueueDepth       int `yaml:"rx_queue_depth"`
	TXQueueDepth       int `yaml:"tx_queue_depth"`
	AckEventQueueDepth int `yaml:"ack_event_queue_depth"`

	// HeartbeatPeriodMs and HeartbeatMissedLimit drive liveness PING
	// cadence and the loss threshold.
	HeartbeatPeriodMs    uint64 `yaml:"heartbeat_period_ms"`
	HeartbeatMissedLimit uint16 `yaml:"heartbeat_missed_limit"`

	// SensorMinPollMs throttles SENS telemetry polling.
	SensorMinPollMs uint64 `yaml:"sensor_min_poll_ms"`

	// LoopInterval is how often the engine drives one Stack.Loop +
	// Heartbeat.Tick + Adapter.Tick iteration.
	LoopInterval time.Duration `yaml:"loop_interval"`

	// DefaultChannel is the radio channel used before any persisted
	// channel is loaded from the KV store.
	DefaultChannel uint8 `yaml:"default_channel"`

	// MaxVirtuals and ChannelsPerVirtual size REMU/SEMU's virtual bank
	// fan-out; unused by physical roles.
	MaxVirtuals      uint8 `yaml:"max_virtuals"`
	ChannelsPerVirtual uint8 `yaml:"channels_per_virtual"`

	// MetricsAddr is the host:port the prometheus registry is served
	// on; empty disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// New returns a Config populated with every spec-mandated default.
func New() *Config {
	return &Config{
		BackoffMs:            []uint64{10, 20, 40},
		AckTimeoutMs:         30,
		ReliableTries:        3,
		BestEffortTries:      1,
		RXQueueDepth:         queue.DefaultRXDepth,
		TXQueueDepth:         queue.DefaultTXDepth,
		AckEventQueueDepth:   queue.DefaultAckDepth,
		HeartbeatPeriodMs:    2000,
		HeartbeatMissedLimit: 3,
		SensorMinPollMs:      50,
		LoopInterval:         10 * time.Millisecond,
		DefaultChannel:       6,
		MaxVirtuals:          8,
		ChannelsPerVirtual:   32,
		MetricsAddr:          "",
	}
}

// ReadFile loads a Config from path, starting from New's defaults so
// an omitted field in the file keeps its spec default rather than
// zeroing out.
func ReadFile(path string) (*Config, error) {
	c := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c, nil
}

// Backoff returns the schedule as a queue.BackoffSchedule.
func (c *Config) Backoff() queue.BackoffSchedule {
	return queue.BackoffSchedule(c.BackoffMs)
}
