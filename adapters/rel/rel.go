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

// Package rel implements the relay-bank role adapter: direct on/off/
// toggle control, timed pulses, and mask state reporting.
package rel

import (
	"sync"

	"github.com/easydriveway/meshcore/adapters/adapterutil"
	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/providers"
)

type pulse struct {
	channel uint16
	offAtMs uint64
}

// Adapter is the REL role adapter.
type Adapter struct {
	Rel   providers.Relay
	Clock providers.Clock
	ID    adapterutil.Identity

	mu     sync.Mutex
	pulses []pulse
}

// New constructs a REL adapter.
func New(rel providers.Relay, clock providers.Clock, id adapterutil.Identity) *Adapter {
	return &Adapter{Rel: rel, Clock: clock, ID: id}
}

// Role implements router.Adapter.
func (a *Adapter) Role() protocol.Role { return protocol.RoleREL }

// SetTopoVersion updates the topology version stamped on outgoing
// replies.
func (a *Adapter) SetTopoVersion(v uint16) { a.ID.TopoVer = v }

// Handle implements router.Adapter.
func (a *Adapter) Handle(srcMac protocol.MAC, in *protocol.Packet) (*protocol.Packet, bool, error) {
	if a.Rel == nil {
		return nil, false, nil
	}
	switch in.Header.MsgType {
	case protocol.MsgCtrlRelay:
		return a.handleCtrlRelay(in)
	case protocol.MsgRlyState:
		return a.replyState(in.Header.Seq)
	default:
		return nil, false, nil
	}
}

func (a *Adapter) handleCtrlRelay(in *protocol.Packet) (*protocol.Packet, bool, error) {
	if len(in.Body) < 4 {
		return nil, false, nil
	}
	var req protocol.CtrlRelay
	if err := req.UnmarshalBinary(in.Body); err != nil {
		return nil, false, nil
	}

	n := a.Rel.Channels()
	if uint16(req.Channel) >= n {
		// Invalid channel; ignored rather than NAKed to avoid an info leak.
		return nil, false, nil
	}

	switch req.Op {
	case protocol.RelayOff:
		a.Rel.Set(uint16(req.Channel), false)
	case protocol.RelayOn:
		a.Rel.Set(uint16(req.Channel), true)
	case protocol.RelayToggle:
		a.Rel.Toggle(uint16(req.Channel))
	default:
		return nil, false, nil
	}

	if req.PulseMs > 0 && req.Op != protocol.RelayOff {
		a.Rel.Set(uint16(req.Channel), true)
		a.mu.Lock()
		a.pulses = append(a.pulses, pulse{channel: uint16(req.Channel), offAtMs: a.Clock.NowMs() + uint64(req.PulseMs)})
		a.mu.Unlock()
	}

	return a.replyState(in.Header.Seq)
}

func (a *Adapter) replyState(echoSeq uint16) (*protocol.Packet, bool, error) {
	n := a.Rel.Channels()
	count := n
	if count > 255 {
		count = 255
	}
	st := protocol.RlyState{
		Mask:    a.readMask(n),
		TopoVer: a.ID.TopoVer,
		Count:   uint8(count),
	}
	body, err := st.MarshalBinary()
	if err != nil {
		return nil, false, err
	}
	hdr := a.ID.EchoHeader(protocol.MsgRlyState, echoSeq, 0, a.Clock.NowMs())
	out, err := a.ID.Compose(hdr, body)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (a *Adapter) readMask(n uint16) uint32 {
	var m uint32
	for i := uint16(0); i < n && i < 32; i++ {
		if a.Rel.Get(i) {
			m |= 1 << uint(i)
		}
	}
	return m
}

// Tick implements router.Adapter: turns off any elapsed pulses.
func (a *Adapter) Tick(nowMs uint64) {
	if a.Rel == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pulses) == 0 {
		return
	}
	live := a.pulses[:0]
	for _, p := range a.pulses {
		if p.offAtMs <= nowMs {
			a.Rel.Set(p.channel, false)
		} else {
			live = append(live, p)
		}
	}
	a.pulses = live
}
