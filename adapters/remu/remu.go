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

// Package remu implements the relay-emulator role adapter: several
// independent virtual relay banks, selected by the packet's virt_id,
// each with its own bitmask and pulse timers.
package remu

import (
	"sync"

	"github.com/easydriveway/meshcore/adapters/adapterutil"
	"github.com/easydriveway/meshcore/protocol"
)

const (
	// DefaultBanks is the default virtual bank count.
	DefaultBanks = 8
	// DefaultChannelsPerBank is the default channel count per bank.
	DefaultChannelsPerBank = 16
)

type pulse struct {
	bank    uint8
	channel uint8
	offAtMs uint64
}

// Adapter is the REMU role adapter.
type Adapter struct {
	Clock ClockSource
	ID    adapterutil.Identity

	banks uint8
	chPer uint8

	mu     sync.Mutex
	state  []uint32
	pulses []pulse
}

// ClockSource supplies the monotonic time the adapter schedules pulses
// against. providers.Clock satisfies this.
type ClockSource interface {
	NowMs() uint64
}

// New constructs a REMU adapter with maxVirtuals banks of
// chansPerVirt channels each (chansPerVirt is clamped to 32, the width
// of one bank's bitmask).
func New(clock ClockSource, id adapterutil.Identity, maxVirtuals, chansPerVirt uint8) *Adapter {
	if chansPerVirt > 32 {
		chansPerVirt = 32
	}
	if maxVirtuals == 0 {
		maxVirtuals = 1
	}
	return &Adapter{
		Clock: clock,
		ID:    id,
		banks: maxVirtuals,
		chPer: chansPerVirt,
		state: make([]uint32, maxVirtuals),
	}
}

// Role implements router.Adapter.
func (a *Adapter) Role() protocol.Role { return protocol.RoleREMU }

// SetTopoVersion updates the topology version stamped on outgoing
// replies.
func (a *Adapter) SetTopoVersion(v uint16) { a.ID.TopoVer = v }

func (a *Adapter) validBank(virt uint8) bool { return virt < a.banks }

// Handle implements router.Adapter.
func (a *Adapter) Handle(srcMac protocol.MAC, in *protocol.Packet) (*protocol.Packet, bool, error) {
	bank := in.Header.VirtID
	if bank == protocol.VirtPhy || !a.validBank(bank) {
		return nil, false, nil
	}

	switch in.Header.MsgType {
	case protocol.MsgCtrlRelay:
		if len(in.Body) < 4 {
			return nil, false, nil
		}
		var req protocol.CtrlRelay
		if err := req.UnmarshalBinary(in.Body); err != nil {
			return nil, false, nil
		}
		a.applyOp(bank, req)
		return a.replyState(bank, in.Header.Seq)
	case protocol.MsgRlyState:
		return a.replyState(bank, in.Header.Seq)
	default:
		return nil, false, nil
	}
}

func (a *Adapter) applyOp(bank uint8, req protocol.CtrlRelay) {
	if req.Channel >= a.chPer {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.state[bank]
	bit := uint32(1) << uint(req.Channel)

	switch req.Op {
	case protocol.RelayOff:
		m &^= bit
	case protocol.RelayOn:
		m |= bit
	case protocol.RelayToggle:
		m ^= bit
	default:
		return
	}

	if req.PulseMs > 0 && m&bit != 0 {
		a.pulses = append(a.pulses, pulse{bank: bank, channel: req.Channel, offAtMs: a.Clock.NowMs() + uint64(req.PulseMs)})
	}

	a.state[bank] = m
}

func (a *Adapter) makeState(bank uint8) protocol.RlyState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return protocol.RlyState{
		Mask:    a.state[bank],
		TopoVer: a.ID.TopoVer,
		Count:   a.chPer,
	}
}

func (a *Adapter) replyState(bank uint8, echoSeq uint16) (*protocol.Packet, bool, error) {
	st := a.makeState(bank)
	body, err := st.MarshalBinary()
	if err != nil {
		return nil, false, err
	}
	hdr := a.ID.EchoHeaderVirt(protocol.MsgRlyState, echoSeq, bank, 0, a.Clock.NowMs())
	out, err := a.ID.Compose(hdr, body)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Tick implements router.Adapter: turns off any elapsed pulses.
func (a *Adapter) Tick(nowMs uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pulses) == 0 {
		return
	}
	live := a.pulses[:0]
	for _, p := range a.pulses {
		if p.offAtMs <= nowMs {
			if p.channel < a.chPer && a.validBank(p.bank) {
				a.state[p.bank] &^= uint32(1) << uint(p.channel)
			}
		} else {
			live = append(live, p)
		}
	}
	a.pulses = live
}
