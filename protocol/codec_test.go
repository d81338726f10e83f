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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader(msg MsgType, flags Flags, seq uint16) Header {
	return Header{
		ProtoVer:   Version,
		MsgType:    msg,
		Flags:      flags,
		Seq:        seq,
		TopoVer:    7,
		VirtID:     VirtPhy,
		SenderMAC:  MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0x01},
		SenderRole: RoleREL,
	}
}

func TestComposeParseRoundTrip(t *testing.T) {
	h := testHeader(MsgCtrlRelay, FlagReliable|FlagHasTopo, 42)
	dev := DeviceToken{0x11, 0x11, 0x11, 0x11}
	topo := TopologyToken{0x22, 0x22}
	body := []byte{0x01, 0x02, 0x03}

	pkt, err := Compose(h, dev, &topo, body)
	require.NoError(t, err)

	parsed, err := Parse(pkt.Bytes())
	require.NoError(t, err)

	assert.Equal(t, h, parsed.Header)
	assert.Equal(t, dev, parsed.Dev)
	require.True(t, parsed.HasTopo())
	assert.Equal(t, topo, *parsed.Topo)
	assert.Equal(t, body, parsed.Body)
}

func TestComposeRejectsBadVersion(t *testing.T) {
	h := testHeader(MsgPing, 0, 1)
	h.ProtoVer = 0x99
	_, err := Compose(h, DeviceToken{}, nil, nil)
	require.Error(t, err)
}

func TestComposeRejectsFlagMismatch(t *testing.T) {
	h := testHeader(MsgPing, FlagHasTopo, 1)
	_, err := Compose(h, DeviceToken{}, nil, nil)
	require.Error(t, err)

	h2 := testHeader(MsgPing, 0, 1)
	topo := TopologyToken{}
	_, err = Compose(h2, DeviceToken{}, &topo, nil)
	require.Error(t, err)
}

func TestComposeRejectsOversizeBody(t *testing.T) {
	h := testHeader(MsgSensReport, 0, 1)
	body := make([]byte, MaxBody+1)
	_, err := Compose(h, DeviceToken{}, nil, body)
	require.Error(t, err)

	okBody := make([]byte, MaxBody)
	_, err = Compose(h, DeviceToken{}, nil, okBody)
	require.NoError(t, err)
}

func TestParseTooSmall(t *testing.T) {
	_, err := Parse([]byte{0x31, 0x01})
	require.Error(t, err)
}

func TestParseBadVersion(t *testing.T) {
	h := testHeader(MsgPing, 0, 1)
	pkt, err := Compose(h, DeviceToken{}, nil, nil)
	require.NoError(t, err)
	raw := append([]byte(nil), pkt.Bytes()...)
	raw[0] = 0x01
	_, err = Parse(raw)
	require.Error(t, err)
}

func TestParseBodylessFrameIsLegal(t *testing.T) {
	h := testHeader(MsgRlyState, 0, 5)
	pkt, err := Compose(h, DeviceToken{}, nil, nil)
	require.NoError(t, err)
	parsed, err := Parse(pkt.Bytes())
	require.NoError(t, err)
	assert.Empty(t, parsed.Body)
}

func TestMessageBodyRoundTrips(t *testing.T) {
	t.Run("PairAck", func(t *testing.T) {
		p := PairAck{OK: 1, Chan: 6}
		b, err := p.MarshalBinary()
		require.NoError(t, err)
		var got PairAck
		require.NoError(t, got.UnmarshalBinary(b))
		assert.Equal(t, p, got)
	})

	t.Run("CtrlRelay", func(t *testing.T) {
		c := CtrlRelay{Channel: 2, Op: RelayOn, PulseMs: 500}
		b, err := c.MarshalBinary()
		require.NoError(t, err)
		var got CtrlRelay
		require.NoError(t, got.UnmarshalBinary(b))
		assert.Equal(t, c, got)
	})

	t.Run("RlyState", func(t *testing.T) {
		r := RlyState{Mask: 0x00000001, TopoVer: 3, Count: 1}
		b, err := r.MarshalBinary()
		require.NoError(t, err)
		var got RlyState
		require.NoError(t, got.UnmarshalBinary(b))
		assert.Equal(t, r, got)
	})

	t.Run("PmsStatus", func(t *testing.T) {
		p := PmsStatus{TempC10: 255, VbusMV: 12000, VsysMV: 5000, IoutMA: 1500, Faults: 0}
		b, err := p.MarshalBinary()
		require.NoError(t, err)
		var got PmsStatus
		require.NoError(t, got.UnmarshalBinary(b))
		assert.Equal(t, p, got)
	})

	t.Run("TimeSync", func(t *testing.T) {
		lo, hi := SplitEpochMillis(1_700_000_000_000)
		ts := TimeSync{EpochMsLo: lo, EpochMsHi: hi}
		b, err := ts.MarshalBinary()
		require.NoError(t, err)
		var got TimeSync
		require.NoError(t, got.UnmarshalBinary(b))
		assert.Equal(t, uint64(1_700_000_000_000), got.EpochMillis())
	})

	t.Run("SensBlobV1", func(t *testing.T) {
		blob := SensBlobV1{
			Lux:     123.5,
			IsDay:   1,
			NPairs:  2,
			TempC10: TempAbsent,
		}
		blob.Pairs[0] = SensPair{Index: 0, PresentA: 1, RateHz: 20}
		blob.Pairs[1] = SensPair{Index: 1, PresentB: 1, RateHz: 20}
		b, err := blob.MarshalBinary()
		require.NoError(t, err)
		assert.Len(t, b, 16+2*sensPairSize)

		var got SensBlobV1
		require.NoError(t, got.UnmarshalBinary(b))
		assert.Equal(t, blob.NPairs, got.NPairs)
		assert.Equal(t, blob.Pairs[0], got.Pairs[0])
		assert.Equal(t, blob.Pairs[1], got.Pairs[1])
	})
}

func TestConfigWriteKeyHelpers(t *testing.T) {
	cw := ConfigWrite{Key: ConfigKeyChannel, Len: 1}
	assert.Equal(t, ConfigKeyChannel, cw.Key)

	pms := ConfigWrite{Key: [6]byte{'C', 'O', 'O', 'L', '_', '_'}}
	assert.True(t, pms.KeyHasPrefix(ConfigKeyCoolPrefix))
	assert.False(t, cw.KeyHasPrefix(ConfigKeyCoolPrefix))
}
