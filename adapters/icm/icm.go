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

// Package icm implements the ICM coordinator's control-plane role
// adapter: pairing admission, channel migration, and the CONFIG_WRITE
// alias for channel migration.
package icm

import (
	log "github.com/sirupsen/logrus"

	"github.com/easydriveway/meshcore/adapters/adapterutil"
	"github.com/easydriveway/meshcore/peerdb"
	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/providers"
)

// Adapter is the ICM role adapter.
type Adapter struct {
	Peers *peerdb.DB
	Clock providers.Clock
	ID    adapterutil.Identity

	// Provisioning gates NOW_MSG_PAIR_REQ admission; the network starts
	// closed and must be explicitly opened for a pairing window.
	provisioning bool
}

// New constructs an ICM adapter. The network starts with provisioning
// closed; call SetProvisioning(true) to open a pairing window.
func New(peers *peerdb.DB, clock providers.Clock, id adapterutil.Identity) *Adapter {
	return &Adapter{Peers: peers, Clock: clock, ID: id}
}

// Role implements router.Adapter.
func (a *Adapter) Role() protocol.Role { return protocol.RoleICM }

// SetProvisioning opens or closes the pairing admission window.
func (a *Adapter) SetProvisioning(on bool) { a.provisioning = on }

// SetTopoVersion updates the topology version stamped on outgoing
// replies.
func (a *Adapter) SetTopoVersion(v uint16) { a.ID.TopoVer = v }

// Tick implements router.Adapter. TIME_SYNC cadence is driven by the
// heartbeat service, not this adapter.
func (a *Adapter) Tick(nowMs uint64) {}

// Handle implements router.Adapter.
func (a *Adapter) Handle(srcMac protocol.MAC, in *protocol.Packet) (*protocol.Packet, bool, error) {
	switch in.Header.MsgType {
	case protocol.MsgPairReq:
		return a.handlePairReq(in)
	case protocol.MsgNetSetChan:
		return a.handleNetSetChan(in)
	case protocol.MsgConfigWrite:
		return a.handleConfigWrite(in)
	case protocol.MsgTimeSync:
		// ICM is the time authority; inbound TIME_SYNC is ignored.
		return nil, false, nil
	default:
		return nil, false, nil
	}
}

func (a *Adapter) handlePairReq(in *protocol.Packet) (*protocol.Packet, bool, error) {
	name := ""
	if len(in.Body) > 0 {
		n := len(in.Body)
		if n > 15 {
			n = 15
		}
		name = string(in.Body[:n])
	}

	log.WithFields(log.Fields{
		"mac":  in.Header.SenderMAC,
		"role": in.Header.SenderRole,
		"name": name,
	}).Info("icm: PAIR_REQ received")

	if in.Dev.IsZero() {
		return nil, false, nil
	}

	ok := a.doPair(in.Header.SenderMAC, in.Header.SenderRole, name, in.Dev)

	ack := protocol.PairAck{
		OK:   boolToByte(ok),
		Chan: a.Peers.Channel(),
	}
	body, err := ack.MarshalBinary()
	if err != nil {
		return nil, false, err
	}
	hdr := a.ID.EchoHeader(protocol.MsgPairAck, in.Header.Seq, 0, a.Clock.NowMs())
	out, err := a.ID.Compose(hdr, body)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (a *Adapter) doPair(mac protocol.MAC, role protocol.Role, name string, token protocol.DeviceToken) bool {
	if !a.provisioning {
		return false
	}
	if token.IsZero() {
		return false
	}
	res, err := a.Peers.Add(mac, role, token, name, true)
	if err != nil {
		log.WithError(err).WithField("mac", mac).Warning("icm: pairing persist failed")
		return false
	}
	return res == peerdb.AddOK || res == peerdb.AddExists
}

func (a *Adapter) handleNetSetChan(in *protocol.Packet) (*protocol.Packet, bool, error) {
	if len(in.Body) < 4 {
		return nil, false, nil
	}
	var req protocol.NetSetChan
	if err := req.UnmarshalBinary(in.Body); err != nil {
		return nil, false, nil
	}
	return a.setChannelReply(req.Channel, in.Header.Seq)
}

func (a *Adapter) handleConfigWrite(in *protocol.Packet) (*protocol.Packet, bool, error) {
	if len(in.Body) < 8 {
		return nil, false, nil
	}
	var cfg protocol.ConfigWrite
	if err := cfg.UnmarshalBinary(in.Body[:8]); err != nil {
		return nil, false, nil
	}
	if cfg.Key != protocol.ConfigKeyChannel {
		return nil, false, nil
	}
	if len(in.Body) < 9 {
		return nil, false, nil
	}
	newChan := in.Body[8]
	return a.setChannelReply(newChan, in.Header.Seq)
}

func (a *Adapter) setChannelReply(newChan uint8, echoSeq uint16) (*protocol.Packet, bool, error) {
	if newChan < 1 || newChan > 13 {
		return nil, false, nil
	}
	if err := a.Peers.SetChannel(newChan); err != nil {
		log.WithError(err).Warning("icm: channel migration failed")
		return nil, false, nil
	}
	log.WithField("channel", newChan).Info("icm: NET_SET_CHAN applied")

	echo := protocol.NetSetChan{Channel: newChan}
	body, err := echo.MarshalBinary()
	if err != nil {
		return nil, false, err
	}
	hdr := a.ID.EchoHeader(protocol.MsgNetSetChan, echoSeq, 0, a.Clock.NowMs())
	out, err := a.ID.Compose(hdr, body)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func boolToByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
