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

// Package heartbeat runs the periodic liveness PING / authority
// TIME_SYNC service shared by every role, and tracks per-peer
// missed-beat counts and one-time loss/recovery events.
package heartbeat

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/easydriveway/meshcore/peerdb"
	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/providers"
	"github.com/easydriveway/meshcore/stack"
)

// DefaultPeriodMs and DefaultMissedLimit match the firmware's compile
// time defaults (HB_PERIOD_MS / HB_MISSED_LIMIT).
const (
	DefaultPeriodMs    = 2000
	DefaultMissedLimit = 3
	rtcValidEpochS     = 1577836800 // 2020-01-01T00:00:00Z
)

type peerState struct {
	lastSeenMs uint64
	lastRssi   int
	missed     uint16
	lossLogged bool
}

// Heartbeat owns its own outgoing sequence space, independent of any
// role adapter's, matching the firmware's per-module counters.
type Heartbeat struct {
	Sender stack.Sender
	Peers  *peerdb.DB
	Clock  providers.Clock

	SelfMAC protocol.MAC
	SelfTok protocol.DeviceToken
	TopoTok *protocol.TopologyToken

	PeriodMs    uint64
	MissedLimit uint16

	mu                sync.Mutex
	authorityOverride bool
	lastBeatMs        uint64
	seq               uint16
	states            map[protocol.MAC]*peerState
}

// New constructs a Heartbeat with the firmware's default period and
// missed-beat limit; override via the PeriodMs/MissedLimit fields.
func New(sender stack.Sender, peers *peerdb.DB, clock providers.Clock, selfMAC protocol.MAC, selfTok protocol.DeviceToken, topoTok *protocol.TopologyToken) *Heartbeat {
	return &Heartbeat{
		Sender:      sender,
		Peers:       peers,
		Clock:       clock,
		SelfMAC:     selfMAC,
		SelfTok:     selfTok,
		TopoTok:     topoTok,
		PeriodMs:    DefaultPeriodMs,
		MissedLimit: DefaultMissedLimit,
		lastBeatMs:  clock.NowMs(),
		seq:         1,
		states:      make(map[protocol.MAC]*peerState),
	}
}

// SetAuthorityOverride forces authority on or off regardless of role.
func (h *Heartbeat) SetAuthorityOverride(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authorityOverride = on
}

func (h *Heartbeat) ensureState(mac protocol.MAC) *peerState {
	st, ok := h.states[mac]
	if !ok {
		st = &peerState{}
		h.states[mac] = st
	}
	return st
}

// OnRx refreshes a peer's liveness bookkeeping. Call it for every
// admitted frame, after stack admission. If pkt is a TIME_SYNC and the
// local node is not authority, the local clock is set from the payload.
func (h *Heartbeat) OnRx(mac protocol.MAC, pkt *protocol.Packet, rssiHint int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.ensureState(mac)
	st.lastSeenMs = h.Clock.NowMs()
	st.lastRssi = rssiHint
	if st.missed != 0 {
		st.missed = 0
		st.lossLogged = false
	}

	if h.isAuthorityLocked() || pkt.Header.MsgType != protocol.MsgTimeSync {
		return
	}
	var ts protocol.TimeSync
	if err := ts.UnmarshalBinary(pkt.Body); err != nil {
		return
	}
	epochMs := ts.EpochMillis()
	log.WithField("unix_seconds", epochMs/1000).Info("heartbeat: clock synced from TIME_SYNC")
	h.Clock.SetUnixSeconds(int64(epochMs / 1000))
}

// Tick drives one heartbeat period check. Call it on every main-loop
// iteration. Peer-loss checking runs on every call; PINGs, missed-beat
// counting and the authority TIME_SYNC happen only once PeriodMs has
// elapsed since the last beat.
func (h *Heartbeat) Tick() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.Clock.NowMs()
	if now-h.lastBeatMs < h.PeriodMs {
		h.checkLossLocked(now)
		return
	}
	h.lastBeatMs = now

	if h.Peers != nil {
		for _, p := range h.Peers.All() {
			if !p.Enabled {
				continue
			}
			h.sendPingToLocked(p.MAC)
			st := h.ensureState(p.MAC)
			if now-st.lastSeenMs >= h.PeriodMs {
				st.missed++
			}
		}
	}

	if h.isAuthorityLocked() && h.rtcValidLocked() {
		h.broadcastTimeSyncLocked()
	}

	h.checkLossLocked(now)
}

func (h *Heartbeat) isAuthorityLocked() bool {
	if h.authorityOverride {
		return true
	}
	return h.Peers != nil && h.Peers.SelfRole() == protocol.RoleICM
}

func (h *Heartbeat) rtcValidLocked() bool {
	return h.Clock.UnixSeconds() >= rtcValidEpochS
}

func (h *Heartbeat) fillHeader(msg protocol.MsgType) protocol.Header {
	h.seq++
	return protocol.Header{
		ProtoVer:   protocol.Version,
		MsgType:    msg,
		Flags:      0,
		Seq:        h.seq,
		VirtID:     protocol.VirtPhy,
		TimestampMs: protocol.TimestampMillis(h.Clock.NowMs()),
		SenderMAC:  h.SelfMAC,
		SenderRole: h.selfRole(),
	}
}

func (h *Heartbeat) selfRole() protocol.Role {
	if h.Peers == nil {
		return protocol.RoleICM
	}
	return h.Peers.SelfRole()
}

func (h *Heartbeat) sendPingToLocked(mac protocol.MAC) {
	hdr := h.fillHeader(protocol.MsgPing)
	body, err := protocol.Ping{}.MarshalBinary()
	if err != nil {
		return
	}
	// PING is not in router.RequiresTopo's topology-bound set, so it
	// never carries a topology token regardless of whether this node
	// has one configured.
	pkt, err := protocol.Compose(hdr, h.SelfTok, nil, body)
	if err != nil {
		log.WithError(err).Warning("heartbeat: failed to compose PING")
		return
	}
	h.Sender.Send(mac, pkt, false)
}

func (h *Heartbeat) broadcastTimeSyncLocked() {
	epochMs := uint64(h.Clock.UnixSeconds()) * 1000
	lo, hi := protocol.SplitEpochMillis(epochMs)
	ts := protocol.TimeSync{EpochMsLo: lo, EpochMsHi: hi}
	body, err := ts.MarshalBinary()
	if err != nil {
		return
	}
	hdr := h.fillHeader(protocol.MsgTimeSync)
	// TIME_SYNC is not topology-bound either; never pass a topo token.
	pkt, err := protocol.Compose(hdr, h.SelfTok, nil, body)
	if err != nil {
		log.WithError(err).Warning("heartbeat: failed to compose TIME_SYNC")
		return
	}
	if h.Peers == nil {
		return
	}
	for _, p := range h.Peers.All() {
		if !p.Enabled {
			continue
		}
		h.Sender.Send(p.MAC, pkt, false)
	}
}

func (h *Heartbeat) checkLossLocked(now uint64) {
	if h.Peers == nil {
		return
	}
	for _, p := range h.Peers.All() {
		if !p.Enabled {
			continue
		}
		st := h.ensureState(p.MAC)
		overWindow := now-st.lastSeenMs >= h.PeriodMs*uint64(h.MissedLimit)
		if (st.missed >= h.MissedLimit || overWindow) && !st.lossLogged {
			log.WithFields(log.Fields{
				"mac":    p.MAC,
				"missed": st.missed,
				"period": h.PeriodMs,
			}).Warning("heartbeat: peer lost")
			st.lossLogged = true
		}
	}
}
