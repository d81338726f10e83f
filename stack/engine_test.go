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

package stack

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/easydriveway/meshcore/peerdb"
	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/providers"
	"github.com/easydriveway/meshcore/queue"
)

// flakyRadio wraps MemRadio and fails the first FailCount sends.
type flakyRadio struct {
	*providers.MemRadio
	FailCount int
}

func (f *flakyRadio) Send(mac protocol.MAC, frame []byte) error {
	if f.FailCount > 0 {
		f.FailCount--
		return fmt.Errorf("flaky: forced failure")
	}
	return f.MemRadio.Send(mac, frame)
}

// recordingRouter satisfies the Router interface and records every
// packet routed to it.
type recordingRouter struct {
	routed []*protocol.Packet
	result RouteResult
}

func (r *recordingRouter) Route(srcMac protocol.MAC, pkt *protocol.Packet, sender Sender) (RouteResult, error) {
	r.routed = append(r.routed, pkt)
	return r.result, nil
}

func newTestEngine(t *testing.T, radio providers.Radio) (*Engine, *peerdb.DB, *providers.MemClock) {
	t.Helper()
	kv := providers.NewMemKV()
	db := peerdb.New(kv, providers.NewMemRadio())
	require.NoError(t, db.Load())
	clock := providers.NewMemClock(1000, 1_700_000_000)
	e := New(db, queue.New(), radio, clock)
	return e, db, clock
}

func composeFrame(t *testing.T, role protocol.Role, mac protocol.MAC, dev protocol.DeviceToken, seq uint16, flags protocol.Flags) []byte {
	t.Helper()
	h := protocol.Header{
		ProtoVer:   protocol.Version,
		MsgType:    protocol.MsgPing,
		Flags:      flags,
		Seq:        seq,
		VirtID:     protocol.VirtPhy,
		SenderMAC:  mac,
		SenderRole: role,
	}
	pkt, err := protocol.Compose(h, dev, nil, nil)
	require.NoError(t, err)
	return pkt.Bytes()
}

func TestAdmissionDropsUnknownPeer(t *testing.T) {
	radio := &flakyRadio{MemRadio: providers.NewMemRadio()}
	e, _, _ := newTestEngine(t, radio)
	router := &recordingRouter{}

	mac := protocol.MAC{0x01}
	frame := composeFrame(t, protocol.RoleREL, mac, protocol.DeviceToken{0x11}, 1, 0)
	e.Queues.PushRX(queue.RxFrame{MAC: mac, Bytes: frame})

	e.Loop(router)
	require.Empty(t, router.routed)
}

func TestAdmissionDropsTokenMismatch(t *testing.T) {
	radio := &flakyRadio{MemRadio: providers.NewMemRadio()}
	e, db, _ := newTestEngine(t, radio)
	router := &recordingRouter{}

	mac := protocol.MAC{0x01}
	_, err := db.Add(mac, protocol.RoleREL, protocol.DeviceToken{0x11}, "r", true)
	require.NoError(t, err)

	frame := composeFrame(t, protocol.RoleREL, mac, protocol.DeviceToken{0x99}, 1, 0)
	e.Queues.PushRX(queue.RxFrame{MAC: mac, Bytes: frame})
	e.Loop(router)
	require.Empty(t, router.routed)
}

func TestAdmissionAcceptsKnownPeer(t *testing.T) {
	radio := &flakyRadio{MemRadio: providers.NewMemRadio()}
	e, db, _ := newTestEngine(t, radio)
	router := &recordingRouter{}

	mac := protocol.MAC{0x01}
	tok := protocol.DeviceToken{0x11}
	_, err := db.Add(mac, protocol.RoleREL, tok, "r", true)
	require.NoError(t, err)

	frame := composeFrame(t, protocol.RoleREL, mac, tok, 1, 0)
	e.Queues.PushRX(queue.RxFrame{MAC: mac, Bytes: frame})
	e.Loop(router)
	require.Len(t, router.routed, 1)
}

func TestReliableSendSucceedsFirstTry(t *testing.T) {
	radio := &flakyRadio{MemRadio: providers.NewMemRadio()}
	e, db, _ := newTestEngine(t, radio)

	mac := protocol.MAC{0x02}
	tok := protocol.DeviceToken{0x22}
	_, err := db.Add(mac, protocol.RoleREL, tok, "r", true)
	require.NoError(t, err)

	h := protocol.Header{ProtoVer: protocol.Version, MsgType: protocol.MsgRlyState, Seq: 7, VirtID: protocol.VirtPhy}
	pkt, err := protocol.Compose(h, tok, nil, nil)
	require.NoError(t, err)

	require.True(t, e.Send(mac, pkt, true))
	e.Loop(&recordingRouter{})

	require.Len(t, radio.Sent, 1)
	require.Len(t, e.pendingAck, 1)
}

func TestReliableSendExhaustsRetriesOnRepeatedAckTimeout(t *testing.T) {
	radio := &flakyRadio{MemRadio: providers.NewMemRadio()}
	e, db, clock := newTestEngine(t, radio)

	mac := protocol.MAC{0x05}
	tok := protocol.DeviceToken{0x55}
	_, err := db.Add(mac, protocol.RoleREL, tok, "r", true)
	require.NoError(t, err)

	h := protocol.Header{ProtoVer: protocol.Version, MsgType: protocol.MsgRlyState, Seq: 3, VirtID: protocol.VirtPhy}
	pkt, err := protocol.Compose(h, tok, nil, nil)
	require.NoError(t, err)

	require.True(t, e.Send(mac, pkt, true))

	// No reply ever arrives, so every attempt ends in an ack timeout.
	// Drive enough rounds of (due-resend, ack-timeout) for all 3 tries
	// to be consumed.
	for round := 0; round < 12; round++ {
		e.Loop(&recordingRouter{})
		clock.Advance(AckTimeoutMs + 25)
	}

	var last queue.SendResult
	found := false
	for {
		select {
		case res := <-e.Queues.AckEvents:
			last = res
			found = true
			continue
		default:
		}
		break
	}
	require.True(t, found)
	require.False(t, last.OK)
	require.Empty(t, e.pendingAck)
}

func TestReliableSendRetriesOnRadioFailure(t *testing.T) {
	radio := &flakyRadio{MemRadio: providers.NewMemRadio(), FailCount: 2}
	e, db, clock := newTestEngine(t, radio)

	mac := protocol.MAC{0x03}
	tok := protocol.DeviceToken{0x33}
	_, err := db.Add(mac, protocol.RoleREL, tok, "r", true)
	require.NoError(t, err)

	h := protocol.Header{ProtoVer: protocol.Version, MsgType: protocol.MsgRlyState, Seq: 9, VirtID: protocol.VirtPhy}
	pkt, err := protocol.Compose(h, tok, nil, nil)
	require.NoError(t, err)

	require.True(t, e.Send(mac, pkt, true))
	e.Loop(&recordingRouter{}) // attempt 1 fails, requeued with backoff
	require.Empty(t, radio.Sent)

	clock.Advance(queue.DefaultBackoff.Delay(0) + 1)
	e.Loop(&recordingRouter{}) // attempt 2 fails, requeued with backoff
	require.Empty(t, radio.Sent)

	clock.Advance(queue.DefaultBackoff.Delay(0) + 1)
	e.Loop(&recordingRouter{}) // attempt 3 succeeds
	require.Len(t, radio.Sent, 1)
}

func TestNonReliableSendNeverRetries(t *testing.T) {
	radio := &flakyRadio{MemRadio: providers.NewMemRadio(), FailCount: 1}
	e, db, _ := newTestEngine(t, radio)

	mac := protocol.MAC{0x04}
	tok := protocol.DeviceToken{0x44}
	_, err := db.Add(mac, protocol.RoleREL, tok, "r", true)
	require.NoError(t, err)

	h := protocol.Header{ProtoVer: protocol.Version, MsgType: protocol.MsgPing, Seq: 1, VirtID: protocol.VirtPhy}
	pkt, err := protocol.Compose(h, tok, nil, nil)
	require.NoError(t, err)

	require.True(t, e.Send(mac, pkt, false))
	e.Loop(&recordingRouter{})

	select {
	case res := <-e.Queues.AckEvents:
		require.False(t, res.OK)
	default:
		t.Fatal("expected an immediate failure ack event")
	}
	require.Empty(t, e.pendingAck)
	require.Empty(t, radio.Sent)
}
