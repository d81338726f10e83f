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

// Package stack implements sequence-window admission and the
// reliable-send scheduler: the single-threaded cooperative loop that
// drains the RX queue through admission and the router, and drains the
// TX queues through send/retry/ack-timeout handling.
package stack

import (
	log "github.com/sirupsen/logrus"

	"github.com/easydriveway/meshcore/peerdb"
	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/providers"
	"github.com/easydriveway/meshcore/queue"
)

// RouteResult mirrors the router's outcome classification so that the
// stack package has no import dependency on the router package
// (Engine is passed to Router.Route as a Sender, avoiding a cycle).
type RouteResult int

// Router route outcomes.
const (
	RouteOK RouteResult = iota
	RouteNoAdapter
	RoutePolicy
	RouteUnimplemented
)

// Sender is the capability a Router needs back from the engine: the
// ability to enqueue a reply for delivery.
type Sender interface {
	Send(mac protocol.MAC, pkt *protocol.Packet, reliable bool) bool
}

// Router dispatches an admitted, parsed packet to the local role
// adapter and returns a reply via sender if one was composed.
type Router interface {
	Route(srcMac protocol.MAC, pkt *protocol.Packet, sender Sender) (RouteResult, error)
}

// Metrics receives scheduler and admission counters. A nil Metrics is
// valid; every method on Engine guards against it.
type Metrics interface {
	IncAdmitted()
	IncDropped(reason string)
	IncSent()
	IncAcked()
	IncRetried()
	IncFailed()
}

// Engine is the role-agnostic transport core: admission, the reliable
// send scheduler, and the cooperative RX/TX loop.
type Engine struct {
	Peers   *peerdb.DB
	Queues  *queue.Queues
	Radio   providers.Radio
	Clock   providers.Clock
	Backoff queue.BackoffSchedule
	Metrics Metrics

	AckTimeoutMs uint64

	// ReliableTries and BestEffortTries size the tries_left budget
	// handed to new TxItems. Defaulted by New; overridable by callers
	// wiring config.Config in before the engine starts.
	ReliableTries   int
	BestEffortTries int

	// OnAdmit, if set, is called for every frame that passes admission
	// (seq-window, peer, device-token, topology-token) just before it
	// is handed to the Router. The heartbeat service hooks this to
	// update per-peer liveness without the stack package needing to
	// know heartbeat exists.
	OnAdmit func(mac protocol.MAC, pkt *protocol.Packet)

	seq        seqTracker
	awaits     awaitRing
	acked      ackedRing
	pendingAck []queue.TxItem
}

// New constructs an Engine with spec-default backoff and ack timeout.
func New(peers *peerdb.DB, queues *queue.Queues, radio providers.Radio, clock providers.Clock) *Engine {
	return &Engine{
		Peers:           peers,
		Queues:          queues,
		Radio:           radio,
		Clock:           clock,
		Backoff:         queue.DefaultBackoff,
		AckTimeoutMs:    AckTimeoutMs,
		ReliableTries:   3,
		BestEffortTries: 1,
	}
}

func (e *Engine) metric() Metrics { return e.Metrics }

// Send composes nothing itself; it accepts an already-composed packet,
// wraps it in a TxItem, and enqueues it. Reliable sends get 3 tries;
// non-reliable sends get 1. Returns false only if the target queue is
// saturated.
func (e *Engine) Send(mac protocol.MAC, pkt *protocol.Packet, reliable bool) bool {
	tries := e.BestEffortTries
	if reliable {
		tries = e.ReliableTries
	}
	if tries <= 0 {
		tries = 1
	}
	item := queue.TxItem{
		MAC:        mac,
		Reliable:   reliable,
		Urgent:     pkt.Header.Flags.Has(protocol.FlagUrgent),
		Seq:        pkt.Header.Seq,
		Bytes:      pkt.Bytes(),
		TriesLeft:  tries,
		DeadlineMs: e.Clock.NowMs(),
	}
	return e.Queues.PushTX(item)
}

// Loop runs exactly one iteration of the cooperative core: drain RX
// through admission and router, then drain and service TX, then reap
// expired awaits. Call it repeatedly from a ticking goroutine.
func (e *Engine) Loop(router Router) {
	e.drainRX(router)
	e.drainTX()
	e.reapAwaits()
}

func (e *Engine) drainRX(router Router) {
	now := e.Clock.NowMs()
	for {
		var frame queue.RxFrame
		select {
		case frame = <-e.Queues.RX:
		default:
			return
		}
		e.admitAndRoute(frame, router, now)
	}
}

func (e *Engine) admitAndRoute(frame queue.RxFrame, router Router, now uint64) {
	pkt, err := protocol.Parse(frame.Bytes)
	if err != nil {
		e.drop("parse_error")
		return
	}
	if pkt.Header.SenderRole > protocol.RoleSENS {
		e.drop("bad_role")
		return
	}
	if !e.seq.AcceptSeq(frame.MAC, pkt.Header.Seq) {
		e.drop("duplicate_seq")
		return
	}

	peer, found := e.Peers.FindByMAC(frame.MAC)
	if !found || !peer.Enabled {
		e.drop("unknown_peer")
		return
	}
	if peer.Token != pkt.Dev {
		e.drop("token_mismatch")
		return
	}
	if pkt.HasTopo() {
		if !e.Peers.TopoTokenMatches(*pkt.Topo) {
			e.drop("topo_mismatch")
			return
		}
	}

	if e.awaits.Satisfy(frame.MAC, pkt.Header.Seq) {
		e.acked.Add(frame.MAC, pkt.Header.Seq, now)
		e.Queues.EmitAck(queue.SendResult{MAC: frame.MAC, Seq: pkt.Header.Seq, OK: true})
		if m := e.metric(); m != nil {
			m.IncAcked()
		}
	}

	if m := e.metric(); m != nil {
		m.IncAdmitted()
	}
	if e.OnAdmit != nil {
		e.OnAdmit(frame.MAC, pkt)
	}

	if _, err := router.Route(frame.MAC, pkt, e); err != nil {
		log.WithError(err).WithField("mac", frame.MAC).Warning("stack: route failed")
	}
}

func (e *Engine) drop(reason string) {
	if m := e.metric(); m != nil {
		m.IncDropped(reason)
	}
}

func (e *Engine) drainTX() {
	now := e.Clock.NowMs()
	var carry []queue.TxItem

	drainOne := func(ch chan queue.TxItem) {
		for {
			var item queue.TxItem
			select {
			case item = <-ch:
			default:
				return
			}
			if next, keep := e.serviceTXItem(item, now); keep {
				carry = append(carry, next)
			}
		}
	}
	drainOne(e.Queues.TXUrgent)
	drainOne(e.Queues.TXNormal)

	for _, item := range carry {
		if !e.Queues.PushTX(item) {
			log.WithField("mac", item.MAC).Warning("stack: dropped carried tx item, queue saturated")
		}
	}
}

// serviceTXItem advances one TxItem by one scheduler step. It returns
// the (possibly updated) item and whether it should be requeued.
func (e *Engine) serviceTXItem(item queue.TxItem, now uint64) (queue.TxItem, bool) {
	if e.acked.Contains(item.MAC, item.Seq) {
		return item, false
	}
	if item.DeadlineMs > now {
		return item, true
	}

	if !item.Reliable {
		err := e.Radio.Send(item.MAC, item.Bytes)
		e.Queues.EmitAck(queue.SendResult{MAC: item.MAC, Seq: item.Seq, OK: err == nil})
		if m := e.metric(); m != nil {
			if err == nil {
				m.IncSent()
			} else {
				m.IncFailed()
			}
		}
		return item, false
	}

	err := e.Radio.Send(item.MAC, item.Bytes)
	if err == nil {
		e.awaits.Add(item.MAC, item.Seq, now+e.AckTimeoutMs)
		item.DeadlineMs = now + e.AckTimeoutMs
		e.pendingAck = append(e.pendingAck, item)
		if m := e.metric(); m != nil {
			m.IncSent()
		}
		return item, false // parked in pendingAck, not the TX channel
	}

	if item.TriesLeft > 1 {
		item.TriesLeft--
		item.DeadlineMs = now + e.Backoff.Delay(0)
		if m := e.metric(); m != nil {
			m.IncRetried()
		}
		return item, true
	}
	e.Queues.EmitAck(queue.SendResult{MAC: item.MAC, Seq: item.Seq, OK: false})
	if m := e.metric(); m != nil {
		m.IncFailed()
	}
	return item, false
}

func (e *Engine) reapAwaits() {
	now := e.Clock.NowMs()

	// Drop pendingAck items that were satisfied during RX admission;
	// their ack was already emitted there.
	kept := e.pendingAck[:0]
	for _, item := range e.pendingAck {
		if e.acked.Contains(item.MAC, item.Seq) {
			continue
		}
		kept = append(kept, item)
	}
	e.pendingAck = kept

	timeouts := e.awaits.ReapExpired(now)
	if len(timeouts) == 0 {
		return
	}

	var stillPending []queue.TxItem
	for _, item := range e.pendingAck {
		matched := false
		for _, to := range timeouts {
			if to.mac == item.MAC && to.seq == item.Seq {
				matched = true
				break
			}
		}
		if !matched {
			stillPending = append(stillPending, item)
			continue
		}
		if item.TriesLeft > 1 {
			item.TriesLeft--
			item.DeadlineMs = now + e.Backoff.Delay(1)
			if m := e.metric(); m != nil {
				m.IncRetried()
			}
			if !e.Queues.PushTX(item) {
				log.WithField("mac", item.MAC).Warning("stack: retry dropped, queue saturated")
			}
		} else {
			e.Queues.EmitAck(queue.SendResult{MAC: item.MAC, Seq: item.Seq, OK: false})
			if m := e.metric(); m != nil {
				m.IncFailed()
			}
		}
	}
	e.pendingAck = stillPending
}
