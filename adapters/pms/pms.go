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

// Package pms implements the power-management role adapter: telemetry
// replies and cooling-duty configuration.
package pms

import (
	log "github.com/sirupsen/logrus"

	"github.com/easydriveway/meshcore/adapters/adapterutil"
	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/providers"
)

// Adapter is the PMS role adapter.
type Adapter struct {
	Telemetry providers.PMSTelemetry
	Cooling   providers.Cooling
	Clock     providers.Clock
	ID        adapterutil.Identity
}

// New constructs a PMS adapter. Cooling may be nil if the node has no
// fan to drive; a COOL config write is then a no-op beyond the status echo.
func New(telemetry providers.PMSTelemetry, cooling providers.Cooling, clock providers.Clock, id adapterutil.Identity) *Adapter {
	return &Adapter{Telemetry: telemetry, Cooling: cooling, Clock: clock, ID: id}
}

// Role implements router.Adapter.
func (a *Adapter) Role() protocol.Role { return protocol.RolePMS }

// Tick implements router.Adapter; PMS has no periodic housekeeping of
// its own.
func (a *Adapter) Tick(nowMs uint64) {}

// Handle implements router.Adapter.
func (a *Adapter) Handle(srcMac protocol.MAC, in *protocol.Packet) (*protocol.Packet, bool, error) {
	switch in.Header.MsgType {
	case protocol.MsgPmsStatus:
		return a.replyStatus(in.Header.Seq)
	case protocol.MsgConfigWrite:
		return a.handleConfigWrite(in)
	case protocol.MsgPing:
		return a.replyPing(in.Header.Seq)
	default:
		return nil, false, nil
	}
}

func (a *Adapter) makeStatus() protocol.PmsStatus {
	st := protocol.PmsStatus{}
	if a.Telemetry != nil {
		st.TempC10 = a.Telemetry.TempC10()
		st.VbusMV = a.Telemetry.VbusMV()
		st.VsysMV = a.Telemetry.VsysMV()
		st.IoutMA = a.Telemetry.IoutMA()
		st.Faults = a.Telemetry.Faults()
	}
	return st
}

func (a *Adapter) replyStatus(echoSeq uint16) (*protocol.Packet, bool, error) {
	st := a.makeStatus()
	body, err := st.MarshalBinary()
	if err != nil {
		return nil, false, err
	}
	hdr := a.ID.EchoHeader(protocol.MsgPmsStatus, echoSeq, 0, a.Clock.NowMs())
	out, err := a.ID.Compose(hdr, body)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (a *Adapter) handleConfigWrite(in *protocol.Packet) (*protocol.Packet, bool, error) {
	if len(in.Body) < 8 {
		return nil, false, nil
	}
	var cfg protocol.ConfigWrite
	if err := cfg.UnmarshalBinary(in.Body[:8]); err != nil {
		return nil, false, nil
	}
	if !cfg.KeyHasPrefix(protocol.ConfigKeyCoolPrefix) {
		return nil, false, nil
	}
	if int(cfg.Len) < 1 || len(in.Body) < 8+int(cfg.Len) {
		return nil, false, nil
	}
	pct := in.Body[8]

	if a.Cooling != nil {
		a.Cooling.SetSpeedPct(pct)
		log.WithField("pct", pct).Info("pms: COOL_SET applied")
	}

	return a.replyStatus(in.Header.Seq)
}

func (a *Adapter) replyPing(echoSeq uint16) (*protocol.Packet, bool, error) {
	st := a.makeStatus()
	var state uint8
	if st.Faults != 0 {
		state |= protocol.PingStateFault
	}
	if a.Cooling != nil && a.Cooling.SpeedPct() > 0 {
		state |= protocol.PingStateFanActive
	}
	reply := protocol.PingReply{
		StateBits: state,
		TempC10:   st.TempC10,
		UptimeS:   uint32(a.Clock.NowMs() / 1000),
	}
	body, err := reply.MarshalBinary()
	if err != nil {
		return nil, false, err
	}
	hdr := a.ID.EchoHeader(protocol.MsgPingReply, echoSeq, 0, a.Clock.NowMs())
	out, err := a.ID.Compose(hdr, body)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}
