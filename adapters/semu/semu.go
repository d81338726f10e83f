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

// Package semu implements the sensor-emulator role adapter: several
// independent virtual sensor banks, each producing a deterministic
// synthetic reading derived from an integer phase counter that
// advances on every Tick. No floating point or randomness is used, so
// readings are exactly reproducible from a given tick count.
package semu

import (
	"sync"

	"github.com/easydriveway/meshcore/adapters/adapterutil"
	"github.com/easydriveway/meshcore/protocol"
)

// DefaultBanks is the default virtual sensor bank count.
const DefaultBanks = 8

// statusAllPresent is the fixed status bitfield reported for every
// synthetic reading: four simulated sensors, all present.
const statusAllPresent uint16 = 0x000F

// ClockSource supplies the uptime the adapter stamps synthetic
// readings with. providers.Clock satisfies this.
type ClockSource interface {
	NowMs() uint64
}

// Adapter is the SEMU role adapter.
type Adapter struct {
	Clock ClockSource
	ID    adapterutil.Identity

	banks uint8

	mu    sync.Mutex
	phase []uint32
}

// New constructs a SEMU adapter with maxVirtuals independent banks,
// each starting at phase 0.
func New(clock ClockSource, id adapterutil.Identity, maxVirtuals uint8) *Adapter {
	if maxVirtuals == 0 {
		maxVirtuals = 1
	}
	return &Adapter{Clock: clock, ID: id, banks: maxVirtuals, phase: make([]uint32, maxVirtuals)}
}

// Role implements router.Adapter.
func (a *Adapter) Role() protocol.Role { return protocol.RoleSEMU }

// SetTopoVersion updates the topology version stamped on outgoing
// replies.
func (a *Adapter) SetTopoVersion(v uint16) { a.ID.TopoVer = v }

func (a *Adapter) validBank(virt uint8) bool { return virt < a.banks }

// Handle implements router.Adapter.
func (a *Adapter) Handle(srcMac protocol.MAC, in *protocol.Packet) (*protocol.Packet, bool, error) {
	virt := in.Header.VirtID
	if virt == protocol.VirtPhy || !a.validBank(virt) {
		return nil, false, nil
	}

	switch in.Header.MsgType {
	case protocol.MsgSensReport:
		return a.replyReport(virt, in.Header.Seq)
	case protocol.MsgPing:
		return a.replyPing(virt, in.Header.Seq)
	default:
		return nil, false, nil
	}
}

// makeReading deterministically derives a synthetic sensor reading for
// bank from its current phase counter. The Knuth multiplicative mix
// matches the original firmware's waveform generator bit for bit.
func (a *Adapter) makeReading(bank uint8) protocol.SemuBlobV1 {
	a.mu.Lock()
	k := a.phase[bank]
	a.mu.Unlock()

	uptimeMs := uint32(a.Clock.NowMs())
	seed := uint32(bank) * 2654435761
	phase := k*1103515245 + seed

	tempX10 := int16(220 + phase%61)           // 22.0..28.0 C
	humiX10 := uint16(350 + (phase>>4)%301)    // 35.0..65.0 %
	lux := uint16(50 + (phase>>7)%901)         // 50..950
	distMM := uint16(200 + (phase>>10)%1601)   // 200..1800 mm

	return protocol.SemuBlobV1{
		UptimeMs: uptimeMs,
		TempC10:  tempX10,
		HumiX10:  humiX10,
		Lux:      lux,
		DistMM:   distMM,
		Status:   statusAllPresent,
	}
}

func (a *Adapter) replyReport(virt uint8, echoSeq uint16) (*protocol.Packet, bool, error) {
	reading := a.makeReading(virt)
	blobBody, err := reading.MarshalBinary()
	if err != nil {
		return nil, false, err
	}
	hdrBody, err := protocol.SensReportHeader{Bytes: uint16(len(blobBody)), Format: protocol.SemuReportFormatV1}.MarshalBinary()
	if err != nil {
		return nil, false, err
	}
	body := append(hdrBody, blobBody...)

	hdr := a.ID.EchoHeaderVirt(protocol.MsgSensReport, echoSeq, virt, 0, a.Clock.NowMs())
	out, err := a.ID.Compose(hdr, body)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (a *Adapter) replyPing(virt uint8, echoSeq uint16) (*protocol.Packet, bool, error) {
	reading := a.makeReading(virt)
	reply := protocol.PingReply{
		StateBits: uint8(reading.Status),
		TempC10:   reading.TempC10,
		UptimeS:   reading.UptimeMs / 1000,
	}
	body, err := reply.MarshalBinary()
	if err != nil {
		return nil, false, err
	}
	hdr := a.ID.EchoHeaderVirt(protocol.MsgPingReply, echoSeq, virt, 0, a.Clock.NowMs())
	out, err := a.ID.Compose(hdr, body)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Tick implements router.Adapter: advances every bank's phase counter
// by one step.
func (a *Adapter) Tick(nowMs uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.phase {
		a.phase[i]++
	}
}
