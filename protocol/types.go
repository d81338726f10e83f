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

// Package protocol implements the mesh wire protocol: frame header,
// device/topology tokens, and the per-message body layouts carried
// between an ICM coordinator and its role nodes.
package protocol

import "fmt"

// Version is the only protocol version this package understands.
const Version uint8 = 0x31

// VirtPhy selects the physical adapter rather than a virtual bank
// instance inside an emulator role.
const VirtPhy uint8 = 0xFF

// MaxBody is the largest payload a frame may carry after the header
// and token prefix.
const MaxBody = 200

// MaxFrame is the largest frame this package will compose or parse.
const MaxFrame = 250

// HeaderSize is the fixed, packed size of Header on the wire.
const HeaderSize = 23

// DeviceTokenSize and TopologyTokenSize are the fixed sizes of the two
// token classes carried in the wire prefix.
const (
	DeviceTokenSize   = 16
	TopologyTokenSize = 16
)

// Role identifies the fixed function of a node for its lifetime.
type Role uint8

// Role values, matching the original firmware's NowRole enum.
const (
	RoleICM Role = iota
	RolePMS
	RoleREL
	RoleREMU
	RoleSEMU
	RoleSENS
)

func (r Role) String() string {
	switch r {
	case RoleICM:
		return "ICM"
	case RolePMS:
		return "PMS"
	case RoleREL:
		return "REL"
	case RoleREMU:
		return "REMU"
	case RoleSEMU:
		return "SEMU"
	case RoleSENS:
		return "SENS"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// MsgType enumerates the wire message catalog.
type MsgType uint8

// Message type codes, matching NowMsgType in the original firmware.
const (
	MsgPairReq     MsgType = 0x01
	MsgPairAck     MsgType = 0x02
	MsgPing        MsgType = 0x03
	MsgPingReply   MsgType = 0x04
	MsgTimeSync    MsgType = 0x05
	MsgTopoPush    MsgType = 0x10
	MsgNetSetChan  MsgType = 0x11
	MsgCtrlRelay   MsgType = 0x20
	MsgRlyState    MsgType = 0x21
	MsgSensReport  MsgType = 0x30
	MsgPmsStatus   MsgType = 0x31
	MsgConfigWrite MsgType = 0x40
	MsgFwBegin     MsgType = 0x50
	MsgFwChunk     MsgType = 0x51
	MsgFwCommit    MsgType = 0x52
	MsgFwStatus    MsgType = 0x53
	MsgFwAbort     MsgType = 0x54
)

func (m MsgType) String() string {
	switch m {
	case MsgPairReq:
		return "PAIR_REQ"
	case MsgPairAck:
		return "PAIR_ACK"
	case MsgPing:
		return "PING"
	case MsgPingReply:
		return "PING_REPLY"
	case MsgTimeSync:
		return "TIME_SYNC"
	case MsgTopoPush:
		return "TOPO_PUSH"
	case MsgNetSetChan:
		return "NET_SET_CHAN"
	case MsgCtrlRelay:
		return "CTRL_RELAY"
	case MsgRlyState:
		return "RLY_STATE"
	case MsgSensReport:
		return "SENS_REPORT"
	case MsgPmsStatus:
		return "PMS_STATUS"
	case MsgConfigWrite:
		return "CONFIG_WRITE"
	case MsgFwBegin:
		return "FW_BEGIN"
	case MsgFwChunk:
		return "FW_CHUNK"
	case MsgFwCommit:
		return "FW_COMMIT"
	case MsgFwStatus:
		return "FW_STATUS"
	case MsgFwAbort:
		return "FW_ABORT"
	default:
		return fmt.Sprintf("MsgType(0x%02X)", uint8(m))
	}
}

// IsFirmwareOp reports whether m falls in the reserved FW_* range.
func (m MsgType) IsFirmwareOp() bool {
	return m >= MsgFwBegin && m <= MsgFwAbort
}

// Flags is the header's bitfield of per-frame delivery hints.
type Flags uint16

// Flag bits, matching NowFlags in the original firmware.
const (
	FlagReliable Flags = 1 << 0
	FlagUrgent   Flags = 1 << 1
	FlagHasTopo  Flags = 1 << 2
)

// Has reports whether all bits in f are set in flags.
func (flags Flags) Has(f Flags) bool {
	return flags&f == f
}

// MAC is a 6-byte radio interface identifier. The zero MAC is the
// sentinel "none" value and is never a valid peer address.
type MAC [6]byte

func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsZero reports whether m is the all-zero sentinel.
func (m MAC) IsZero() bool {
	return m == MAC{}
}

// DeviceToken is the 16-byte per-(local,peer) admission credential.
type DeviceToken [DeviceTokenSize]byte

// IsZero reports whether t is the all-zero token.
func (t DeviceToken) IsZero() bool {
	return t == DeviceToken{}
}

// TopologyToken is the 16-byte device-wide credential authorizing
// topology-bound operations.
type TopologyToken [TopologyTokenSize]byte
