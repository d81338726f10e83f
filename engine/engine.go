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

// Package engine wires protocol, peerdb, queue, stack, router,
// heartbeat, and the six role adapters into one owned object with a
// single Run(ctx) entry point, the way ptp4u/server.Server.Start spins
// up its workers and listeners under one Server value.
package engine

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/easydriveway/meshcore/adapters/adapterutil"
	"github.com/easydriveway/meshcore/adapters/icm"
	"github.com/easydriveway/meshcore/adapters/pms"
	"github.com/easydriveway/meshcore/adapters/rel"
	"github.com/easydriveway/meshcore/adapters/remu"
	"github.com/easydriveway/meshcore/adapters/semu"
	"github.com/easydriveway/meshcore/adapters/sens"
	"github.com/easydriveway/meshcore/config"
	"github.com/easydriveway/meshcore/heartbeat"
	"github.com/easydriveway/meshcore/peerdb"
	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/providers"
	"github.com/easydriveway/meshcore/queue"
	"github.com/easydriveway/meshcore/router"
	"github.com/easydriveway/meshcore/stack"
)

// Deps are the role-specific collaborators a local adapter needs.
// Only the fields relevant to the configured role need be populated;
// the rest are ignored.
type Deps struct {
	PMSTelemetry  providers.PMSTelemetry
	Cooling       providers.Cooling
	Relay         providers.Relay
	SENSTelemetry providers.SENSTelemetry
}

// topoVersionSetter is implemented by every adapter whose replies
// stamp a topology version (everything but pms and sens, which carry
// no topology-bound operations).
type topoVersionSetter interface {
	SetTopoVersion(v uint16)
}

// Engine is a fully wired mesh node: one role's adapter behind the
// router, driven by the Stack scheduler and the heartbeat service on
// a single cooperative loop.
type Engine struct {
	Config *config.Config
	Peers  *peerdb.DB
	Queues *queue.Queues

	Stack     *stack.Engine
	Router    *router.Router
	Heartbeat *heartbeat.Heartbeat
	Adapter   router.Adapter

	clock providers.Clock
}

// New constructs an Engine for role, wired against cfg's tunables. kv
// and radio may be real providers or the in-memory fakes under
// providers.Mem*. Peers must already be loaded (peers.Load) before New
// is called: New records role as the self role in it and reads the
// topology version and topology token from it.
func New(cfg *config.Config, peers *peerdb.DB, radio providers.Radio, clock providers.Clock, selfMAC protocol.MAC, selfTok protocol.DeviceToken, role protocol.Role, deps Deps) (*Engine, error) {
	peers.SetSelfRole(role)

	queues := queue.NewWithDepths(cfg.RXQueueDepth, cfg.TXQueueDepth, cfg.AckEventQueueDepth)

	se := stack.New(peers, queues, radio, clock)
	se.Backoff = cfg.Backoff()
	se.AckTimeoutMs = cfg.AckTimeoutMs
	se.ReliableTries = cfg.ReliableTries
	se.BestEffortTries = cfg.BestEffortTries

	id := adapterutil.Identity{SelfMAC: selfMAC, Role: role, SelfTok: selfTok, TopoVer: peers.TopoVersion()}
	var topoTok *protocol.TopologyToken
	if tok, ok := peers.TopoToken(); ok {
		topoTok = &tok
		id.TopoTok = topoTok
	}

	adapter, err := buildAdapter(role, cfg, peers, clock, id, deps)
	if err != nil {
		return nil, err
	}

	rt := router.New(adapter)
	hb := heartbeat.New(se, peers, clock, selfMAC, selfTok, topoTok)
	hb.PeriodMs = cfg.HeartbeatPeriodMs
	hb.MissedLimit = cfg.HeartbeatMissedLimit
	se.OnAdmit = func(mac protocol.MAC, pkt *protocol.Packet) {
		hb.OnRx(mac, pkt, 0)
	}

	return &Engine{
		Config:    cfg,
		Peers:     peers,
		Queues:    queues,
		Stack:     se,
		Router:    rt,
		Heartbeat: hb,
		Adapter:   adapter,
		clock:     clock,
	}, nil
}

func buildAdapter(role protocol.Role, cfg *config.Config, peers *peerdb.DB, clock providers.Clock, id adapterutil.Identity, deps Deps) (router.Adapter, error) {
	switch role {
	case protocol.RoleICM:
		return icm.New(peers, clock, id), nil
	case protocol.RolePMS:
		return pms.New(deps.PMSTelemetry, deps.Cooling, clock, id), nil
	case protocol.RoleREL:
		return rel.New(deps.Relay, clock, id), nil
	case protocol.RoleREMU:
		return remu.New(clock, id, cfg.MaxVirtuals, cfg.ChannelsPerVirtual), nil
	case protocol.RoleSENS:
		a := sens.New(deps.SENSTelemetry, clock, id)
		a.MinPollMs = cfg.SensorMinPollMs
		return a, nil
	case protocol.RoleSEMU:
		return semu.New(clock, id, cfg.MaxVirtuals), nil
	default:
		return nil, fmt.Errorf("engine: unknown role %v", role)
	}
}

// ICMAdapter returns the local icm.Adapter and true iff the engine was
// built for protocol.RoleICM.
func (e *Engine) ICMAdapter() (*icm.Adapter, bool) {
	a, ok := e.Adapter.(*icm.Adapter)
	return a, ok
}

// SetTopoVersion updates the topology version the local adapter stamps
// on outgoing replies, if the role's adapter tracks one, and persists
// it in PeerDB.
func (e *Engine) SetTopoVersion(v uint16) {
	if s, ok := e.Adapter.(topoVersionSetter); ok {
		s.SetTopoVersion(v)
	}
	e.Peers.SetTopoVersion(v)
}

// OnRecv implements providers.RadioCallbacks: the radio shim hands a
// raw frame to the engine, which only enqueues it. No PeerDB or
// adapter state is touched outside the cooperative loop.
func (e *Engine) OnRecv(mac protocol.MAC, frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	if !e.Queues.PushRX(queue.RxFrame{MAC: mac, Bytes: cp}) {
		log.WithField("mac", mac).Debug("engine: RX queue saturated, dropping newest frame")
	}
}

// OnSendComplete implements providers.RadioCallbacks. The Stack
// scheduler already treats a synchronous error return from Radio.Send
// as the failure signal; an asynchronous completion callback is
// logged for observability only.
func (e *Engine) OnSendComplete(mac protocol.MAC, ok bool) {
	if !ok {
		log.WithField("mac", mac).Debug("engine: async send-complete reported failure")
	}
}

// Run drives the cooperative loop — Stack.Loop, Heartbeat.Tick,
// Adapter.Tick — every cfg.LoopInterval until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.Config.LoopInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Stack.Loop(e.Router)
			e.Heartbeat.Tick()
			e.Adapter.Tick(e.clock.NowMs())
		}
	}
}
