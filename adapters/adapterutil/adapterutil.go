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

// Package adapterutil holds the reply-header construction shared by
// every role adapter: each adapter echoes the caller's sequence number
// so the caller's reliable-send scheduler can match the reply to its
// outstanding await.
package adapterutil

import "github.com/easydriveway/meshcore/protocol"

// Identity is the fixed per-node identity every adapter needs to
// compose a reply: its own MAC/role, device token, and the optional
// topology token it was provisioned with.
type Identity struct {
	SelfMAC protocol.MAC
	Role    protocol.Role
	SelfTok protocol.DeviceToken
	TopoTok *protocol.TopologyToken
	TopoVer uint16
}

// EchoHeader builds a reply header for msg that echoes the inbound
// packet's sequence number and carries the node's own identity, clock,
// and topology token state.
func (id Identity) EchoHeader(msg protocol.MsgType, echoSeq uint16, flags protocol.Flags, nowMs uint64) protocol.Header {
	return id.EchoHeaderVirt(msg, echoSeq, protocol.VirtPhy, flags, nowMs)
}

// EchoHeaderVirt is EchoHeader with an explicit virt_id, for adapters
// that emulate more than one virtual target and must echo the
// caller's virt_id back so its router can map the reply to the right
// bank.
func (id Identity) EchoHeaderVirt(msg protocol.MsgType, echoSeq uint16, virt uint8, flags protocol.Flags, nowMs uint64) protocol.Header {
	if id.TopoTok != nil {
		flags |= protocol.FlagHasTopo
	}
	return protocol.Header{
		ProtoVer:    protocol.Version,
		MsgType:     msg,
		Flags:       flags,
		Seq:         echoSeq,
		TopoVer:     id.TopoVer,
		VirtID:      virt,
		TimestampMs: protocol.TimestampMillis(nowMs),
		SenderMAC:   id.SelfMAC,
		SenderRole:  id.Role,
	}
}

// Compose wraps protocol.Compose with the identity's own device and
// topology tokens.
func (id Identity) Compose(h protocol.Header, body []byte) (*protocol.Packet, error) {
	return protocol.Compose(h, id.SelfTok, id.TopoTok, body)
}
