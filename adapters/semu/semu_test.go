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

package semu

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/easydriveway/meshcore/adapters/adapterutil"
	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/providers"
)

func newTestAdapter(t *testing.T, banks uint8) (*Adapter, *providers.MemClock) {
	t.Helper()
	clock := providers.NewMemClock(5000, 1_700_000_000)
	id := adapterutil.Identity{SelfMAC: protocol.MAC{0xE0}, Role: protocol.RoleSEMU, SelfTok: protocol.DeviceToken{0xAA}}
	return New(clock, id, banks), clock
}

func sensReportPacketVirt(t *testing.T, virt uint8, seq uint16) *protocol.Packet {
	t.Helper()
	h := protocol.Header{ProtoVer: protocol.Version, MsgType: protocol.MsgSensReport, Seq: seq, VirtID: virt, SenderRole: protocol.RoleICM}
	pkt, err := protocol.Compose(h, protocol.DeviceToken{0xAA}, nil, nil)
	require.NoError(t, err)
	return pkt
}

func pingPacketVirt(t *testing.T, virt uint8, seq uint16) *protocol.Packet {
	t.Helper()
	h := protocol.Header{ProtoVer: protocol.Version, MsgType: protocol.MsgPing, Seq: seq, VirtID: virt, SenderRole: protocol.RoleICM}
	pkt, err := protocol.Compose(h, protocol.DeviceToken{0xAA}, nil, nil)
	require.NoError(t, err)
	return pkt
}

func TestSensReportEchoesVirtIDAndDecodes(t *testing.T) {
	a, _ := newTestAdapter(t, 4)

	out, handled, err := a.Handle(protocol.MAC{0x01}, sensReportPacketVirt(t, 2, 7))
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, uint8(2), out.Header.VirtID)
	require.Equal(t, uint16(7), out.Header.Seq)

	var hdr protocol.SensReportHeader
	require.NoError(t, hdr.UnmarshalBinary(out.Body))
	require.Equal(t, protocol.SemuReportFormatV1, hdr.Format)

	var blob protocol.SemuBlobV1
	require.NoError(t, blob.UnmarshalBinary(out.Body[4:]))
}

func TestPhysicalVirtIDIsIgnored(t *testing.T) {
	a, _ := newTestAdapter(t, 4)

	out, handled, err := a.Handle(protocol.MAC{0x01}, sensReportPacketVirt(t, protocol.VirtPhy, 1))
	require.NoError(t, err)
	require.False(t, handled)
	require.Nil(t, out)
}

func TestOutOfRangeBankIsIgnored(t *testing.T) {
	a, _ := newTestAdapter(t, 4)

	out, handled, err := a.Handle(protocol.MAC{0x01}, sensReportPacketVirt(t, 9, 1))
	require.NoError(t, err)
	require.False(t, handled)
	require.Nil(t, out)
}

func TestTickAdvancesReadingsDeterministically(t *testing.T) {
	a, _ := newTestAdapter(t, 1)

	out1, _, err := a.Handle(protocol.MAC{0x01}, sensReportPacketVirt(t, 0, 1))
	require.NoError(t, err)
	var blob1 protocol.SemuBlobV1
	require.NoError(t, blob1.UnmarshalBinary(out1.Body[4:]))

	a.Tick(5000)

	out2, _, err := a.Handle(protocol.MAC{0x01}, sensReportPacketVirt(t, 0, 2))
	require.NoError(t, err)
	var blob2 protocol.SemuBlobV1
	require.NoError(t, blob2.UnmarshalBinary(out2.Body[4:]))

	require.NotEqual(t, blob1, blob2)
}

func TestTickIsReproducibleFromSamePhase(t *testing.T) {
	a1, _ := newTestAdapter(t, 1)
	a2, _ := newTestAdapter(t, 1)

	for i := 0; i < 3; i++ {
		a1.Tick(0)
		a2.Tick(0)
	}

	out1, _, err := a1.Handle(protocol.MAC{0x01}, sensReportPacketVirt(t, 0, 1))
	require.NoError(t, err)
	out2, _, err := a2.Handle(protocol.MAC{0x01}, sensReportPacketVirt(t, 0, 1))
	require.NoError(t, err)
	require.Equal(t, out1.Body, out2.Body)
}

func TestBanksAreIndependent(t *testing.T) {
	a, _ := newTestAdapter(t, 2)
	a.Tick(0)

	out0, _, err := a.Handle(protocol.MAC{0x01}, sensReportPacketVirt(t, 0, 1))
	require.NoError(t, err)
	out1, _, err := a.Handle(protocol.MAC{0x01}, sensReportPacketVirt(t, 1, 2))
	require.NoError(t, err)
	require.NotEqual(t, out0.Body, out1.Body)
}

func TestPingReplyUsesCurrentReading(t *testing.T) {
	a, _ := newTestAdapter(t, 1)

	out, handled, err := a.Handle(protocol.MAC{0x01}, pingPacketVirt(t, 0, 3))
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, protocol.MsgPingReply, out.Header.MsgType)

	var reply protocol.PingReply
	require.NoError(t, reply.UnmarshalBinary(out.Body))
	require.Equal(t, uint8(0x0F), reply.StateBits)
}

func TestSetTopoVersionStampsReplies(t *testing.T) {
	a, _ := newTestAdapter(t, 1)
	a.SetTopoVersion(42)
	require.Equal(t, uint16(42), a.ID.TopoVer)
}

func TestZeroMaxVirtualsClampsToOne(t *testing.T) {
	a, _ := newTestAdapter(t, 0)
	require.Equal(t, uint8(1), a.banks)
}
