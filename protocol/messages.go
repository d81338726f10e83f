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

package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PairAck is the body of PAIR_ACK: {ok, chan, reserved[2]}.
type PairAck struct {
	OK      uint8
	Chan    uint8
	Reserved uint16
}

// MarshalBinary encodes PairAck to its 4-byte wire form.
func (p PairAck) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	b[0] = p.OK
	b[1] = p.Chan
	binary.LittleEndian.PutUint16(b[2:], p.Reserved)
	return b, nil
}

// UnmarshalBinary decodes PairAck from its 4-byte wire form.
func (p *PairAck) UnmarshalBinary(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("protocol: PairAck: need 4 bytes, got %d", len(b))
	}
	p.OK = b[0]
	p.Chan = b[1]
	p.Reserved = binary.LittleEndian.Uint16(b[2:])
	return nil
}

// Ping is the 9-byte PING body. TempC10 keeps tenths-of-a-degree
// precision (e.g. 253 = 25.3C), matching the original NowPing's
// 16-bit temp_c_x10 field.
type Ping struct {
	StateBits uint8
	TempC10   int16
	UptimeS   uint32
	Reserved  uint16
}

// MarshalBinary encodes Ping to its 9-byte wire form.
func (p Ping) MarshalBinary() ([]byte, error) {
	b := make([]byte, 9)
	b[0] = p.StateBits
	binary.LittleEndian.PutUint16(b[1:], uint16(p.TempC10))
	binary.LittleEndian.PutUint32(b[3:], p.UptimeS)
	binary.LittleEndian.PutUint16(b[7:], p.Reserved)
	return b, nil
}

// UnmarshalBinary decodes Ping from its 9-byte wire form.
func (p *Ping) UnmarshalBinary(b []byte) error {
	if len(b) < 9 {
		return fmt.Errorf("protocol: Ping: need 9 bytes, got %d", len(b))
	}
	p.StateBits = b[0]
	p.TempC10 = int16(binary.LittleEndian.Uint16(b[1:]))
	p.UptimeS = binary.LittleEndian.Uint32(b[3:])
	p.Reserved = binary.LittleEndian.Uint16(b[7:])
	return nil
}

// PingReply is the 9-byte PING_REPLY body. Bit 0 of StateBits is
// fault-present, bit 1 is fan/cooling active. TempC10 keeps
// tenths-of-a-degree precision, matching the original NowPingReply's
// 16-bit temp_c_x10 field.
type PingReply struct {
	StateBits uint8
	TempC10   int16
	UptimeS   uint32
	Reserved  uint16
}

const (
	// PingStateFault is StateBits bit 0.
	PingStateFault uint8 = 1 << 0
	// PingStateFanActive is StateBits bit 1.
	PingStateFanActive uint8 = 1 << 1
	// PingStateIsDay is StateBits bit 0, as reused by SENS.
	PingStateIsDay uint8 = 1 << 0
)

// MarshalBinary encodes PingReply to its 9-byte wire form.
func (p PingReply) MarshalBinary() ([]byte, error) {
	b := make([]byte, 9)
	b[0] = p.StateBits
	binary.LittleEndian.PutUint16(b[1:], uint16(p.TempC10))
	binary.LittleEndian.PutUint32(b[3:], p.UptimeS)
	binary.LittleEndian.PutUint16(b[7:], p.Reserved)
	return b, nil
}

// UnmarshalBinary decodes PingReply from its 9-byte wire form.
func (p *PingReply) UnmarshalBinary(b []byte) error {
	if len(b) < 9 {
		return fmt.Errorf("protocol: PingReply: need 9 bytes, got %d", len(b))
	}
	p.StateBits = b[0]
	p.TempC10 = int16(binary.LittleEndian.Uint16(b[1:]))
	p.UptimeS = binary.LittleEndian.Uint32(b[3:])
	p.Reserved = binary.LittleEndian.Uint16(b[7:])
	return nil
}

// TimeSync is the 12-byte TIME_SYNC body carrying the epoch in
// milliseconds split low/high, plus an optional drift hint.
type TimeSync struct {
	EpochMsLo uint32
	EpochMsHi uint32
	DriftMs   int16
	Reserved  uint16
}

// EpochMillis reassembles the split epoch fields into one value.
func (t TimeSync) EpochMillis() uint64 {
	return uint64(t.EpochMsHi)<<32 | uint64(t.EpochMsLo)
}

// SplitEpochMillis builds a TimeSync's epoch fields from a single
// millisecond value.
func SplitEpochMillis(ms uint64) (lo, hi uint32) {
	return uint32(ms & 0xFFFFFFFF), uint32(ms >> 32)
}

// MarshalBinary encodes TimeSync to its 12-byte wire form.
func (t TimeSync) MarshalBinary() ([]byte, error) {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:], t.EpochMsLo)
	binary.LittleEndian.PutUint32(b[4:], t.EpochMsHi)
	binary.LittleEndian.PutUint16(b[8:], uint16(t.DriftMs))
	binary.LittleEndian.PutUint16(b[10:], t.Reserved)
	return b, nil
}

// UnmarshalBinary decodes TimeSync from its 12-byte wire form.
func (t *TimeSync) UnmarshalBinary(b []byte) error {
	if len(b) < 12 {
		return fmt.Errorf("protocol: TimeSync: need 12 bytes, got %d", len(b))
	}
	t.EpochMsLo = binary.LittleEndian.Uint32(b[0:])
	t.EpochMsHi = binary.LittleEndian.Uint32(b[4:])
	t.DriftMs = int16(binary.LittleEndian.Uint16(b[8:]))
	t.Reserved = binary.LittleEndian.Uint16(b[10:])
	return nil
}

// NetSetChan is the 4-byte NET_SET_CHAN body.
type NetSetChan struct {
	Channel  uint8
	Reserved [3]uint8
}

// MarshalBinary encodes NetSetChan to its 4-byte wire form.
func (n NetSetChan) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	b[0] = n.Channel
	copy(b[1:], n.Reserved[:])
	return b, nil
}

// UnmarshalBinary decodes NetSetChan from its 4-byte wire form.
func (n *NetSetChan) UnmarshalBinary(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("protocol: NetSetChan: need 4 bytes, got %d", len(b))
	}
	n.Channel = b[0]
	copy(n.Reserved[:], b[1:4])
	return nil
}

// RelayOp enumerates CTRL_RELAY operations.
type RelayOp uint8

// Relay operations, matching NowRlyOp in the original firmware.
const (
	RelayOff RelayOp = iota
	RelayOn
	RelayToggle
)

// CtrlRelay is the 4-byte CTRL_RELAY body.
type CtrlRelay struct {
	Channel uint8
	Op      RelayOp
	PulseMs uint16
}

// MarshalBinary encodes CtrlRelay to its 4-byte wire form.
func (c CtrlRelay) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	b[0] = c.Channel
	b[1] = byte(c.Op)
	binary.LittleEndian.PutUint16(b[2:], c.PulseMs)
	return b, nil
}

// UnmarshalBinary decodes CtrlRelay from its 4-byte wire form.
func (c *CtrlRelay) UnmarshalBinary(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("protocol: CtrlRelay: need 4 bytes, got %d", len(b))
	}
	c.Channel = b[0]
	c.Op = RelayOp(b[1])
	c.PulseMs = binary.LittleEndian.Uint16(b[2:])
	return nil
}

// RlyState is the 8-byte RLY_STATE body.
type RlyState struct {
	Mask    uint32
	TopoVer uint16
	Count   uint8
	Reserved uint8
}

// MarshalBinary encodes RlyState to its 8-byte wire form.
func (r RlyState) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:], r.Mask)
	binary.LittleEndian.PutUint16(b[4:], r.TopoVer)
	b[6] = r.Count
	b[7] = r.Reserved
	return b, nil
}

// UnmarshalBinary decodes RlyState from its 8-byte wire form.
func (r *RlyState) UnmarshalBinary(b []byte) error {
	if len(b) < 8 {
		return fmt.Errorf("protocol: RlyState: need 8 bytes, got %d", len(b))
	}
	r.Mask = binary.LittleEndian.Uint32(b[0:])
	r.TopoVer = binary.LittleEndian.Uint16(b[4:])
	r.Count = b[6]
	r.Reserved = b[7]
	return nil
}

// SensReportHeader is the 4-byte header prefixing a SENS_REPORT blob.
type SensReportHeader struct {
	Bytes  uint16
	Format uint16
}

// SensReportFormatV1 is the only SENS_REPORT blob format.
const SensReportFormatV1 uint16 = 0x0001

// MarshalBinary encodes SensReportHeader to its 4-byte wire form.
func (s SensReportHeader) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:], s.Bytes)
	binary.LittleEndian.PutUint16(b[2:], s.Format)
	return b, nil
}

// UnmarshalBinary decodes SensReportHeader from its 4-byte wire form.
func (s *SensReportHeader) UnmarshalBinary(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("protocol: SensReportHeader: need 4 bytes, got %d", len(b))
	}
	s.Bytes = binary.LittleEndian.Uint16(b[0:])
	s.Format = binary.LittleEndian.Uint16(b[2:])
	return nil
}

// SensPair is one TF-Luna beam-break pair inside a SENS_REPORT blob.
type SensPair struct {
	Index     uint8
	PresentA  uint8
	PresentB  uint8
	Direction uint8
	RateHz    uint8
	Reserved  uint8
}

const sensPairSize = 6

// MarshalBinary encodes SensPair to its 6-byte wire form.
func (p SensPair) MarshalBinary() ([]byte, error) {
	b := make([]byte, sensPairSize)
	b[0] = p.Index
	b[1] = p.PresentA
	b[2] = p.PresentB
	b[3] = p.Direction
	b[4] = p.RateHz
	b[5] = p.Reserved
	return b, nil
}

// UnmarshalBinary decodes SensPair from its 6-byte wire form.
func (p *SensPair) UnmarshalBinary(b []byte) error {
	if len(b) < sensPairSize {
		return fmt.Errorf("protocol: SensPair: need %d bytes, got %d", sensPairSize, len(b))
	}
	p.Index = b[0]
	p.PresentA = b[1]
	p.PresentB = b[2]
	p.Direction = b[3]
	p.RateHz = b[4]
	p.Reserved = b[5]
	return nil
}

// SensBlobV1 is the SENS_REPORT payload format, max 8 beam-break pairs.
type SensBlobV1 struct {
	EpochMsLo uint32
	EpochMsHi uint32
	Lux       float32
	IsDay     uint8
	NPairs    uint8
	TempC10   int16 // TempAbsent when no DS18B20 reading is available
	Reserved0 uint16
	Pairs     [8]SensPair
}

// TempAbsent is the sentinel TempC10 value meaning "no temperature
// sensor reading available".
const TempAbsent int16 = -32768

// MarshalBinary encodes SensBlobV1 into a byte slice sized to hold
// exactly NPairs pairs (the fixed 16-byte header plus NPairs*6).
func (s SensBlobV1) MarshalBinary() ([]byte, error) {
	if s.NPairs > 8 {
		return nil, fmt.Errorf("protocol: SensBlobV1: NPairs %d exceeds 8", s.NPairs)
	}
	b := make([]byte, 16+int(s.NPairs)*sensPairSize)
	binary.LittleEndian.PutUint32(b[0:], s.EpochMsLo)
	binary.LittleEndian.PutUint32(b[4:], s.EpochMsHi)
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(s.Lux))
	b[12] = s.IsDay
	b[13] = s.NPairs
	binary.LittleEndian.PutUint16(b[14:], uint16(s.TempC10))
	for i := 0; i < int(s.NPairs); i++ {
		pb, _ := s.Pairs[i].MarshalBinary()
		copy(b[16+i*sensPairSize:], pb)
	}
	return b, nil
}

// UnmarshalBinary decodes SensBlobV1 from its wire form.
func (s *SensBlobV1) UnmarshalBinary(b []byte) error {
	if len(b) < 16 {
		return fmt.Errorf("protocol: SensBlobV1: need at least 16 bytes, got %d", len(b))
	}
	s.EpochMsLo = binary.LittleEndian.Uint32(b[0:])
	s.EpochMsHi = binary.LittleEndian.Uint32(b[4:])
	s.Lux = math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))
	s.IsDay = b[12]
	s.NPairs = b[13]
	s.TempC10 = int16(binary.LittleEndian.Uint16(b[14:]))
	n := int(s.NPairs)
	if n > 8 {
		n = 8
	}
	for i := 0; i < n; i++ {
		off := 16 + i*sensPairSize
		if off+sensPairSize > len(b) {
			break
		}
		if err := s.Pairs[i].UnmarshalBinary(b[off : off+sensPairSize]); err != nil {
			return err
		}
	}
	return nil
}

// SemuReportFormatV1 is the SENS_REPORT blob format SEMU emulators use
// in place of SensReportFormatV1.
const SemuReportFormatV1 uint16 = 0x0001

// SemuBlobV1 is the 14-byte deterministic synthetic-sensor blob a SEMU
// virtual bank reports under SemuReportFormatV1.
type SemuBlobV1 struct {
	UptimeMs uint32
	TempC10  int16
	HumiX10  uint16
	Lux      uint16
	DistMM   uint16
	Status   uint16
}

const semuBlobSize = 14

// MarshalBinary encodes SemuBlobV1 to its 14-byte wire form.
func (s SemuBlobV1) MarshalBinary() ([]byte, error) {
	b := make([]byte, semuBlobSize)
	binary.LittleEndian.PutUint32(b[0:], s.UptimeMs)
	binary.LittleEndian.PutUint16(b[4:], uint16(s.TempC10))
	binary.LittleEndian.PutUint16(b[6:], s.HumiX10)
	binary.LittleEndian.PutUint16(b[8:], s.Lux)
	binary.LittleEndian.PutUint16(b[10:], s.DistMM)
	binary.LittleEndian.PutUint16(b[12:], s.Status)
	return b, nil
}

// UnmarshalBinary decodes SemuBlobV1 from its 14-byte wire form.
func (s *SemuBlobV1) UnmarshalBinary(b []byte) error {
	if len(b) < semuBlobSize {
		return fmt.Errorf("protocol: SemuBlobV1: need %d bytes, got %d", semuBlobSize, len(b))
	}
	s.UptimeMs = binary.LittleEndian.Uint32(b[0:])
	s.TempC10 = int16(binary.LittleEndian.Uint16(b[4:]))
	s.HumiX10 = binary.LittleEndian.Uint16(b[6:])
	s.Lux = binary.LittleEndian.Uint16(b[8:])
	s.DistMM = binary.LittleEndian.Uint16(b[10:])
	s.Status = binary.LittleEndian.Uint16(b[12:])
	return nil
}

// PmsStatus is the 10-byte PMS_STATUS body.
type PmsStatus struct {
	TempC10 int16
	VbusMV  uint16
	VsysMV  uint16
	IoutMA  int16
	Faults  uint16
}

// PMS fault bits.
const (
	PmsFaultOverTemp uint16 = 1 << 0
	PmsFaultOverCurr uint16 = 1 << 1
	PmsFaultUnderV   uint16 = 1 << 2
)

// MarshalBinary encodes PmsStatus to its 10-byte wire form.
func (p PmsStatus) MarshalBinary() ([]byte, error) {
	b := make([]byte, 10)
	binary.LittleEndian.PutUint16(b[0:], uint16(p.TempC10))
	binary.LittleEndian.PutUint16(b[2:], p.VbusMV)
	binary.LittleEndian.PutUint16(b[4:], p.VsysMV)
	binary.LittleEndian.PutUint16(b[6:], uint16(p.IoutMA))
	binary.LittleEndian.PutUint16(b[8:], p.Faults)
	return b, nil
}

// UnmarshalBinary decodes PmsStatus from its 10-byte wire form.
func (p *PmsStatus) UnmarshalBinary(b []byte) error {
	if len(b) < 10 {
		return fmt.Errorf("protocol: PmsStatus: need 10 bytes, got %d", len(b))
	}
	p.TempC10 = int16(binary.LittleEndian.Uint16(b[0:]))
	p.VbusMV = binary.LittleEndian.Uint16(b[2:])
	p.VsysMV = binary.LittleEndian.Uint16(b[4:])
	p.IoutMA = int16(binary.LittleEndian.Uint16(b[6:]))
	p.Faults = binary.LittleEndian.Uint16(b[8:])
	return nil
}

// ConfigWrite is the fixed 8-byte header of CONFIG_WRITE; the value
// bytes immediately follow in the frame body.
type ConfigWrite struct {
	Key [6]byte
	Len uint16
}

// ConfigKeyChannel is the well-known key treated by the ICM adapter as
// a channel-set request.
var ConfigKeyChannel = [6]byte{'C', 'H', 'A', 'N', '_', '_'}

// ConfigKeyCoolPrefix is the 4-byte prefix the PMS adapter recognizes
// as a cooling-duty write.
var ConfigKeyCoolPrefix = [4]byte{'C', 'O', 'O', 'L'}

// MarshalBinary encodes the ConfigWrite header to its 8-byte wire form.
func (c ConfigWrite) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	copy(b[0:6], c.Key[:])
	binary.LittleEndian.PutUint16(b[6:], c.Len)
	return b, nil
}

// UnmarshalBinary decodes the ConfigWrite header from its 8-byte wire form.
func (c *ConfigWrite) UnmarshalBinary(b []byte) error {
	if len(b) < 8 {
		return fmt.Errorf("protocol: ConfigWrite: need 8 bytes, got %d", len(b))
	}
	copy(c.Key[:], b[0:6])
	c.Len = binary.LittleEndian.Uint16(b[6:])
	return nil
}

// KeyHasPrefix reports whether the write's key starts with prefix.
func (c ConfigWrite) KeyHasPrefix(prefix [4]byte) bool {
	return c.Key[0] == prefix[0] && c.Key[1] == prefix[1] && c.Key[2] == prefix[2] && c.Key[3] == prefix[3]
}

// FwBegin, FwChunk, FwCommit, and FwStatus model the reserved
// firmware-transport frames (FW_BEGIN..FW_ABORT). No adapter
// implements their delivery semantics; the codec only recognizes
// their shapes so the router's ICM-only privilege gate can cover them.

// FwBegin is the 10-byte FW_BEGIN body.
type FwBegin struct {
	TotalLen uint32
	CRC32    uint32
	ChunkLen uint16
}

// MarshalBinary encodes FwBegin to its 10-byte wire form.
func (f FwBegin) MarshalBinary() ([]byte, error) {
	b := make([]byte, 10)
	binary.LittleEndian.PutUint32(b[0:], f.TotalLen)
	binary.LittleEndian.PutUint32(b[4:], f.CRC32)
	binary.LittleEndian.PutUint16(b[8:], f.ChunkLen)
	return b, nil
}

// UnmarshalBinary decodes FwBegin from its 10-byte wire form.
func (f *FwBegin) UnmarshalBinary(b []byte) error {
	if len(b) < 10 {
		return fmt.Errorf("protocol: FwBegin: need 10 bytes, got %d", len(b))
	}
	f.TotalLen = binary.LittleEndian.Uint32(b[0:])
	f.CRC32 = binary.LittleEndian.Uint32(b[4:])
	f.ChunkLen = binary.LittleEndian.Uint16(b[8:])
	return nil
}

// FwChunk is the 6-byte FW_CHUNK header; chunk data follows in the body.
type FwChunk struct {
	Offset uint32
	Len    uint16
}

// MarshalBinary encodes FwChunk to its 6-byte wire form.
func (f FwChunk) MarshalBinary() ([]byte, error) {
	b := make([]byte, 6)
	binary.LittleEndian.PutUint32(b[0:], f.Offset)
	binary.LittleEndian.PutUint16(b[4:], f.Len)
	return b, nil
}

// UnmarshalBinary decodes FwChunk from its 6-byte wire form.
func (f *FwChunk) UnmarshalBinary(b []byte) error {
	if len(b) < 6 {
		return fmt.Errorf("protocol: FwChunk: need 6 bytes, got %d", len(b))
	}
	f.Offset = binary.LittleEndian.Uint32(b[0:])
	f.Len = binary.LittleEndian.Uint16(b[4:])
	return nil
}

// FwCommit is the 4-byte FW_COMMIT body.
type FwCommit struct {
	CRC32 uint32
}

// MarshalBinary encodes FwCommit to its 4-byte wire form.
func (f FwCommit) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b[0:], f.CRC32)
	return b, nil
}

// UnmarshalBinary decodes FwCommit from its 4-byte wire form.
func (f *FwCommit) UnmarshalBinary(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("protocol: FwCommit: need 4 bytes, got %d", len(b))
	}
	f.CRC32 = binary.LittleEndian.Uint32(b[0:])
	return nil
}

// FwState enumerates FW_STATUS states.
type FwState uint8

// Firmware transport states.
const (
	FwStateIdle FwState = iota
	FwStateReceiving
	FwStateCommitted
	FwStateError
)

// FwStatus is the 4-byte FW_STATUS body.
type FwStatus struct {
	State    FwState
	ErrCode  uint8
	Received uint16
}

// MarshalBinary encodes FwStatus to its 4-byte wire form.
func (f FwStatus) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	b[0] = byte(f.State)
	b[1] = f.ErrCode
	binary.LittleEndian.PutUint16(b[2:], f.Received)
	return b, nil
}

// UnmarshalBinary decodes FwStatus from its 4-byte wire form.
func (f *FwStatus) UnmarshalBinary(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("protocol: FwStatus: need 4 bytes, got %d", len(b))
	}
	f.State = FwState(b[0])
	f.ErrCode = b[1]
	f.Received = binary.LittleEndian.Uint16(b[2:])
	return nil
}
