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

// Package queue provides the bounded channels that connect the radio
// shim to the cooperative Stack loop, and the retry backoff schedule
// the scheduler consults between attempts.
package queue

import "github.com/easydriveway/meshcore/protocol"

// RxFrame is one inbound frame as handed off by the radio shim.
type RxFrame struct {
	MAC   protocol.MAC
	Bytes []byte
}

// TxItem is a scheduler entry: a composed frame awaiting send, with
// its retry budget and next-attempt deadline.
type TxItem struct {
	MAC        protocol.MAC
	Reliable   bool
	Urgent     bool
	Seq        uint16
	Bytes      []byte
	TriesLeft  int
	DeadlineMs uint64
}

// SendResult is emitted on the ack-event queue when a reliable send's
// outcome becomes known, or on demand for observability.
type SendResult struct {
	MAC protocol.MAC
	Seq uint16
	OK  bool
}

// Queues holds the bounded channels a Stack drains each loop
// iteration: RX from the radio, TX normal and TX urgent (urgent always
// drained first), and an optional ack-event channel for observability.
//
// Radio callbacks are the only producers for RX; they must never touch
// PeerDB or adapter state directly, matching the single-consumer
// cooperative-loop model.
type Queues struct {
	RX        chan RxFrame
	TXNormal  chan TxItem
	TXUrgent  chan TxItem
	AckEvents chan SendResult
}

// Default bounded depths, generous enough that a burst of adapter
// replies or heartbeat pings does not stall the main loop.
const (
	DefaultRXDepth    = 32
	DefaultTXDepth    = 32
	DefaultAckDepth   = 32
)

// New allocates a Queues with the default bounded depths.
func New() *Queues {
	return NewWithDepths(DefaultRXDepth, DefaultTXDepth, DefaultAckDepth)
}

// NewWithDepths allocates a Queues with caller-supplied bounded
// depths, letting config.Config size the channels without this
// package needing to know about config.
func NewWithDepths(rxDepth, txDepth, ackDepth int) *Queues {
	return &Queues{
		RX:        make(chan RxFrame, rxDepth),
		TXNormal:  make(chan TxItem, txDepth),
		TXUrgent:  make(chan TxItem, txDepth),
		AckEvents: make(chan SendResult, ackDepth),
	}
}

// PushRX enqueues an inbound frame. RX overflow silently drops the
// newest frame, matching the bounded xQueueSend-with-zero-wait
// semantics of the original firmware.
func (q *Queues) PushRX(f RxFrame) bool {
	select {
	case q.RX <- f:
		return true
	default:
		return false
	}
}

// PushTX enqueues a TxItem onto the urgent or normal queue depending
// on item.Urgent. It returns false if that queue is saturated; the
// caller's responsibility is to retry later.
func (q *Queues) PushTX(item TxItem) bool {
	target := q.TXNormal
	if item.Urgent {
		target = q.TXUrgent
	}
	select {
	case target <- item:
		return true
	default:
		return false
	}
}

// EmitAck reports a send outcome. AckEvent overflow is tolerated: the
// caller's Await/Acked rings remain the source of truth, so a dropped
// observability event does not affect scheduler correctness.
func (q *Queues) EmitAck(r SendResult) {
	select {
	case q.AckEvents <- r:
	default:
	}
}

// BackoffSchedule maps a zero-based attempt index to a delay in
// milliseconds, capping at the final configured slot for any index
// beyond the table.
type BackoffSchedule []uint64

// DefaultBackoff is the spec's concrete default: 10ms, 20ms, 40ms,
// capped thereafter.
var DefaultBackoff = BackoffSchedule{10, 20, 40}

// Delay returns the backoff delay for attempt (0-based), capped at the
// schedule's last entry.
func (b BackoffSchedule) Delay(attempt int) uint64 {
	if len(b) == 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(b) {
		attempt = len(b) - 1
	}
	return b[attempt]
}
