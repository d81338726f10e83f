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

package heartbeat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/easydriveway/meshcore/peerdb"
	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/providers"
)

// recordingSender records every Send call without touching a real radio.
type recordingSender struct {
	sent []protocol.MAC
	pkts []*protocol.Packet
}

func (s *recordingSender) Send(mac protocol.MAC, pkt *protocol.Packet, reliable bool) bool {
	s.sent = append(s.sent, mac)
	s.pkts = append(s.pkts, pkt)
	return true
}

func newTestPeers(t *testing.T) *peerdb.DB {
	t.Helper()
	db := peerdb.New(providers.NewMemKV(), providers.NewMemRadio())
	require.NoError(t, db.Load())
	return db
}

func TestTickSendsPingToEnabledPeersOnly(t *testing.T) {
	peers := newTestPeers(t)
	peers.SetSelfRole(protocol.RoleREL)
	mac1 := protocol.MAC{0x01}
	mac2 := protocol.MAC{0x02}
	_, err := peers.Add(mac1, protocol.RoleREL, protocol.DeviceToken{0x11}, "r1", true)
	require.NoError(t, err)
	_, err = peers.Add(mac2, protocol.RoleREL, protocol.DeviceToken{0x22}, "r2", false)
	require.NoError(t, err)

	sender := &recordingSender{}
	clock := providers.NewMemClock(10_000, 1_700_000_000)
	hb := New(sender, peers, clock, protocol.MAC{0xAA}, protocol.DeviceToken{0xFF}, nil)

	clock.Advance(DefaultPeriodMs)
	hb.Tick()

	require.Len(t, sender.sent, 1)
	require.Equal(t, mac1, sender.sent[0])
	require.Equal(t, protocol.MsgPing, sender.pkts[0].Header.MsgType)
}

func TestTickIsNoopBeforePeriodElapses(t *testing.T) {
	peers := newTestPeers(t)
	mac := protocol.MAC{0x01}
	_, err := peers.Add(mac, protocol.RoleREL, protocol.DeviceToken{0x11}, "r", true)
	require.NoError(t, err)

	sender := &recordingSender{}
	clock := providers.NewMemClock(10_000, 1_700_000_000)
	hb := New(sender, peers, clock, protocol.MAC{0xAA}, protocol.DeviceToken{0xFF}, nil)

	clock.Advance(DefaultPeriodMs - 1)
	hb.Tick()
	require.Empty(t, sender.sent)
}

func TestICMBroadcastsTimeSyncWhenRTCValid(t *testing.T) {
	peers := newTestPeers(t)
	peers.SetSelfRole(protocol.RoleICM)
	mac := protocol.MAC{0x01}
	_, err := peers.Add(mac, protocol.RoleREL, protocol.DeviceToken{0x11}, "r", true)
	require.NoError(t, err)

	sender := &recordingSender{}
	clock := providers.NewMemClock(10_000, 1_700_000_000)
	hb := New(sender, peers, clock, protocol.MAC{0xAA}, protocol.DeviceToken{0xFF}, nil)

	clock.Advance(DefaultPeriodMs)
	hb.Tick()

	// One PING plus one TIME_SYNC broadcast to the single enabled peer.
	require.Len(t, sender.sent, 2)
	require.Equal(t, protocol.MsgPing, sender.pkts[0].Header.MsgType)
	require.Equal(t, protocol.MsgTimeSync, sender.pkts[1].Header.MsgType)
}

func TestNonAuthorityNeverBroadcastsTimeSync(t *testing.T) {
	peers := newTestPeers(t)
	peers.SetSelfRole(protocol.RoleREL)
	mac := protocol.MAC{0x01}
	_, err := peers.Add(mac, protocol.RoleICM, protocol.DeviceToken{0x11}, "icm", true)
	require.NoError(t, err)

	sender := &recordingSender{}
	clock := providers.NewMemClock(10_000, 1_700_000_000)
	hb := New(sender, peers, clock, protocol.MAC{0xAA}, protocol.DeviceToken{0xFF}, nil)

	clock.Advance(DefaultPeriodMs)
	hb.Tick()

	require.Len(t, sender.sent, 1)
	require.Equal(t, protocol.MsgPing, sender.pkts[0].Header.MsgType)
}

func TestOnRxSyncsClockFromTimeSyncWhenNonAuthority(t *testing.T) {
	peers := newTestPeers(t)
	peers.SetSelfRole(protocol.RoleREL)
	clock := providers.NewMemClock(10_000, 0)
	sender := &recordingSender{}
	hb := New(sender, peers, clock, protocol.MAC{0xAA}, protocol.DeviceToken{0xFF}, nil)

	lo, hi := protocol.SplitEpochMillis(1_700_000_000_000)
	ts := protocol.TimeSync{EpochMsLo: lo, EpochMsHi: hi}
	body, err := ts.MarshalBinary()
	require.NoError(t, err)

	h := protocol.Header{ProtoVer: protocol.Version, MsgType: protocol.MsgTimeSync, VirtID: protocol.VirtPhy, SenderRole: protocol.RoleICM}
	pkt, err := protocol.Compose(h, protocol.DeviceToken{}, nil, body)
	require.NoError(t, err)

	hb.OnRx(protocol.MAC{0x01}, pkt, 0)
	require.Equal(t, int64(1_700_000_000), clock.UnixSeconds())
}

func TestAuthorityIgnoresTimeSyncOnRx(t *testing.T) {
	peers := newTestPeers(t)
	peers.SetSelfRole(protocol.RoleICM)
	clock := providers.NewMemClock(10_000, 0)
	sender := &recordingSender{}
	hb := New(sender, peers, clock, protocol.MAC{0xAA}, protocol.DeviceToken{0xFF}, nil)

	lo, hi := protocol.SplitEpochMillis(1_700_000_000_000)
	ts := protocol.TimeSync{EpochMsLo: lo, EpochMsHi: hi}
	body, err := ts.MarshalBinary()
	require.NoError(t, err)
	h := protocol.Header{ProtoVer: protocol.Version, MsgType: protocol.MsgTimeSync, VirtID: protocol.VirtPhy}
	pkt, err := protocol.Compose(h, protocol.DeviceToken{}, nil, body)
	require.NoError(t, err)

	hb.OnRx(protocol.MAC{0x01}, pkt, 0)
	require.Equal(t, int64(0), clock.UnixSeconds())
}

func TestLossIsLoggedOnceAndClearsOnRecovery(t *testing.T) {
	peers := newTestPeers(t)
	mac := protocol.MAC{0x01}
	_, err := peers.Add(mac, protocol.RoleREL, protocol.DeviceToken{0x11}, "r", true)
	require.NoError(t, err)

	sender := &recordingSender{}
	clock := providers.NewMemClock(10_000, 1_700_000_000)
	hb := New(sender, peers, clock, protocol.MAC{0xAA}, protocol.DeviceToken{0xFF}, nil)

	// Silence for > period*limit ticks: one loss event should be recorded.
	for i := 0; i < int(DefaultMissedLimit)+1; i++ {
		clock.Advance(DefaultPeriodMs)
		hb.Tick()
	}
	st := hb.ensureState(mac)
	require.True(t, st.lossLogged)

	// Peer responds: OnRx clears missed/lossLogged.
	h := protocol.Header{ProtoVer: protocol.Version, MsgType: protocol.MsgPingReply, VirtID: protocol.VirtPhy, SenderRole: protocol.RoleREL}
	pkt, err := protocol.Compose(h, protocol.DeviceToken{}, nil, nil)
	require.NoError(t, err)
	hb.OnRx(mac, pkt, -40)

	st = hb.ensureState(mac)
	require.False(t, st.lossLogged)
	require.Zero(t, st.missed)
}
