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

// Package sens implements the sensor role adapter: a throttled
// beam-break/ambient-light snapshot reported as a compact blob, plus a
// mini day/night status reply to PING.
package sens

import (
	"sync"

	"github.com/easydriveway/meshcore/adapters/adapterutil"
	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/providers"
)

// DefaultMinPollMs throttles telemetry polling to 20Hz, matching the
// TF-Luna frame-rate budget the original firmware protects.
const DefaultMinPollMs = 50

type snapshot struct {
	lux     float32
	isDay   bool
	tempC10 int16
	tempOK  bool
	pairs   []providers.SensPairSnapshot
}

// Adapter is the SENS role adapter.
type Adapter struct {
	Telemetry providers.SENSTelemetry
	Clock     providers.Clock
	ID        adapterutil.Identity
	MinPollMs uint64

	mu         sync.Mutex
	snap       snapshot
	lastPollMs uint64
}

// New constructs a SENS adapter with the default poll throttle.
func New(telemetry providers.SENSTelemetry, clock providers.Clock, id adapterutil.Identity) *Adapter {
	return &Adapter{Telemetry: telemetry, Clock: clock, ID: id, MinPollMs: DefaultMinPollMs}
}

// Role implements router.Adapter.
func (a *Adapter) Role() protocol.Role { return protocol.RoleSENS }

// Tick implements router.Adapter: refreshes the cached snapshot if it
// has gone stale, independent of any inbound request.
func (a *Adapter) Tick(nowMs uint64) { a.refreshIfStale(nowMs) }

func (a *Adapter) refreshIfStale(nowMs uint64) {
	if a.Telemetry == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if nowMs-a.lastPollMs < a.MinPollMs {
		return
	}
	temp, tempOK := a.Telemetry.TempC10()
	a.snap = snapshot{
		lux:     a.Telemetry.Lux(),
		isDay:   a.Telemetry.IsDay(),
		tempC10: temp,
		tempOK:  tempOK,
		pairs:   a.Telemetry.Pairs(),
	}
	a.lastPollMs = nowMs
}

// Handle implements router.Adapter.
func (a *Adapter) Handle(srcMac protocol.MAC, in *protocol.Packet) (*protocol.Packet, bool, error) {
	switch in.Header.MsgType {
	case protocol.MsgPing:
		return a.replyPing(in.Header.Seq)
	case protocol.MsgSensReport:
		return a.replyReport(in.Header.Seq)
	default:
		return nil, false, nil
	}
}

func (a *Adapter) replyPing(echoSeq uint16) (*protocol.Packet, bool, error) {
	now := a.Clock.NowMs()
	a.refreshIfStale(now)

	a.mu.Lock()
	snap := a.snap
	a.mu.Unlock()

	var state uint8
	if snap.isDay {
		state |= protocol.PingStateIsDay
	}
	var temp int16
	if snap.tempOK {
		temp = snap.tempC10
	}

	reply := protocol.PingReply{
		StateBits: state,
		TempC10:   temp,
		UptimeS:   uint32(now / 1000),
	}
	body, err := reply.MarshalBinary()
	if err != nil {
		return nil, false, err
	}
	hdr := a.ID.EchoHeader(protocol.MsgPingReply, echoSeq, 0, now)
	out, err := a.ID.Compose(hdr, body)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (a *Adapter) replyReport(echoSeq uint16) (*protocol.Packet, bool, error) {
	now := a.Clock.NowMs()
	a.refreshIfStale(now)

	a.mu.Lock()
	snap := a.snap
	a.mu.Unlock()

	blob := buildBlob(snap, a.Clock.UnixSeconds())
	body, err := composeReportBody(blob)
	if err != nil {
		return nil, false, err
	}

	hdr := a.ID.EchoHeader(protocol.MsgSensReport, echoSeq, 0, now)
	out, err := a.ID.Compose(hdr, body)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func buildBlob(snap snapshot, unixSeconds int64) protocol.SensBlobV1 {
	var epochMs uint64
	if unixSeconds >= rtcValidEpochS {
		epochMs = uint64(unixSeconds) * 1000
	}

	blob := protocol.SensBlobV1{
		EpochMsLo: uint32(epochMs & 0xFFFFFFFF),
		EpochMsHi: uint32(epochMs >> 32),
		Lux:       snap.lux,
		TempC10:   protocol.TempAbsent,
	}
	if snap.isDay {
		blob.IsDay = 1
	}
	if snap.tempOK {
		blob.TempC10 = snap.tempC10
	}

	n := len(snap.pairs)
	if n > 8 {
		n = 8
	}
	blob.NPairs = uint8(n)
	for i := 0; i < n; i++ {
		p := snap.pairs[i]
		blob.Pairs[i] = protocol.SensPair{
			Index:     p.Index,
			PresentA:  boolToByte(p.PresentA),
			PresentB:  boolToByte(p.PresentB),
			Direction: p.Direction,
			RateHz:    p.RateHz,
		}
	}
	return blob
}

// composeReportBody assembles [SensReportHeader][SensBlobV1], truncating
// pairs if necessary to respect protocol.MaxBody.
func composeReportBody(blob protocol.SensBlobV1) ([]byte, error) {
	blobBody, err := blob.MarshalBinary()
	if err != nil {
		return nil, err
	}

	const headerSize = 4
	for len(blobBody)+headerSize > protocol.MaxBody && blob.NPairs > 0 {
		blob.NPairs--
		blobBody, err = blob.MarshalBinary()
		if err != nil {
			return nil, err
		}
	}

	hdr := protocol.SensReportHeader{Bytes: uint16(len(blobBody)), Format: protocol.SensReportFormatV1}
	hdrBody, err := hdr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(hdrBody, blobBody...), nil
}

const rtcValidEpochS = 1577836800 // 2020-01-01T00:00:00Z

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
