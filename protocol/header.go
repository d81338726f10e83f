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

import "encoding/binary"

// Header is the 23-byte packed, little-endian frame header common to
// every message on the wire.
type Header struct {
	ProtoVer     uint8
	MsgType      MsgType
	Flags        Flags
	Seq          uint16
	TopoVer      uint16
	VirtID       uint8
	Reserved     uint8
	TimestampMs  [6]uint8 // sender milliseconds since boot, diagnostic
	SenderMAC    MAC
	SenderRole   Role
}

// headerMarshalBinaryTo is not a Header.MarshalBinaryTo to prevent
// every packet type from getting a default (and incomplete)
// MarshalBinaryTo through embedding.
func headerMarshalBinaryTo(h *Header, b []byte) int {
	b[0] = h.ProtoVer
	b[1] = byte(h.MsgType)
	binary.LittleEndian.PutUint16(b[2:], uint16(h.Flags))
	binary.LittleEndian.PutUint16(b[4:], h.Seq)
	binary.LittleEndian.PutUint16(b[6:], h.TopoVer)
	b[8] = h.VirtID
	b[9] = h.Reserved
	copy(b[10:16], h.TimestampMs[:])
	copy(b[16:22], h.SenderMAC[:])
	b[22] = byte(h.SenderRole)
	return HeaderSize
}

func unmarshalHeader(h *Header, b []byte) {
	h.ProtoVer = b[0]
	h.MsgType = MsgType(b[1])
	h.Flags = Flags(binary.LittleEndian.Uint16(b[2:]))
	h.Seq = binary.LittleEndian.Uint16(b[4:])
	h.TopoVer = binary.LittleEndian.Uint16(b[6:])
	h.VirtID = b[8]
	h.Reserved = b[9]
	copy(h.TimestampMs[:], b[10:16])
	copy(h.SenderMAC[:], b[16:22])
	h.SenderRole = Role(b[22])
}

// TimestampMillis packs a 48-bit millisecond counter the way the
// original firmware does, least-significant byte first.
func TimestampMillis(ms uint64) [6]uint8 {
	var out [6]uint8
	for i := 0; i < 6; i++ {
		out[i] = uint8((ms >> (8 * i)) & 0xFF)
	}
	return out
}

// Millis unpacks the header's 48-bit millisecond counter.
func (h Header) Millis() uint64 {
	var ms uint64
	for i := 0; i < 6; i++ {
		ms |= uint64(h.TimestampMs[i]) << (8 * i)
	}
	return ms
}
