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

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/easydriveway/meshcore/adapters/remu"
	"github.com/easydriveway/meshcore/config"
	"github.com/easydriveway/meshcore/peerdb"
	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/providers"
)

func newTestPeers(t *testing.T) *peerdb.DB {
	t.Helper()
	db := peerdb.New(providers.NewMemKV(), providers.NewMemRadio())
	require.NoError(t, db.Load())
	return db
}

func TestNewBuildsAdapterPerRole(t *testing.T) {
	cases := []struct {
		role protocol.Role
		deps Deps
	}{
		{protocol.RoleICM, Deps{}},
		{protocol.RolePMS, Deps{PMSTelemetry: &providers.MemPMSTelemetry{}, Cooling: &providers.MemCooling{}}},
		{protocol.RoleREL, Deps{Relay: providers.NewMemRelay(4)}},
		{protocol.RoleREMU, Deps{}},
		{protocol.RoleSENS, Deps{SENSTelemetry: providers.NewMemSENSTelemetry()}},
		{protocol.RoleSEMU, Deps{}},
	}
	for _, tc := range cases {
		peers := newTestPeers(t)
		clock := providers.NewMemClock(1000, 1_700_000_000)
		e, err := New(config.New(), peers, providers.NewMemRadio(), clock, protocol.MAC{0x01}, protocol.DeviceToken{0xAA}, tc.role, tc.deps)
		require.NoError(t, err, tc.role)
		require.Equal(t, tc.role, e.Adapter.Role())
		require.Equal(t, tc.role, peers.SelfRole())
	}
}

func TestNewRejectsUnknownRole(t *testing.T) {
	peers := newTestPeers(t)
	clock := providers.NewMemClock(0, 0)
	_, err := New(config.New(), peers, providers.NewMemRadio(), clock, protocol.MAC{0x01}, protocol.DeviceToken{0xAA}, protocol.Role(200), Deps{})
	require.Error(t, err)
}

func TestICMAdapterAccessor(t *testing.T) {
	peers := newTestPeers(t)
	clock := providers.NewMemClock(0, 0)
	e, err := New(config.New(), peers, providers.NewMemRadio(), clock, protocol.MAC{0x01}, protocol.DeviceToken{0xAA}, protocol.RoleICM, Deps{})
	require.NoError(t, err)

	icmA, ok := e.ICMAdapter()
	require.True(t, ok)
	require.NotNil(t, icmA)

	peers2 := newTestPeers(t)
	e2, err := New(config.New(), peers2, providers.NewMemRadio(), clock, protocol.MAC{0x01}, protocol.DeviceToken{0xAA}, protocol.RoleREL, Deps{Relay: providers.NewMemRelay(2)})
	require.NoError(t, err)
	_, ok = e2.ICMAdapter()
	require.False(t, ok)
}

func TestSetTopoVersionPropagatesToAdapterAndPeers(t *testing.T) {
	peers := newTestPeers(t)
	clock := providers.NewMemClock(0, 0)
	e, err := New(config.New(), peers, providers.NewMemRadio(), clock, protocol.MAC{0x01}, protocol.DeviceToken{0xAA}, protocol.RoleREMU, Deps{})
	require.NoError(t, err)

	e.SetTopoVersion(7)
	require.Equal(t, uint16(7), peers.TopoVersion())
	a, ok := e.Adapter.(*remu.Adapter)
	require.True(t, ok)
	require.Equal(t, uint16(7), a.ID.TopoVer)
}

func TestOnRecvEnqueuesRXFrame(t *testing.T) {
	peers := newTestPeers(t)
	clock := providers.NewMemClock(0, 0)
	e, err := New(config.New(), peers, providers.NewMemRadio(), clock, protocol.MAC{0x01}, protocol.DeviceToken{0xAA}, protocol.RoleICM, Deps{})
	require.NoError(t, err)

	e.OnRecv(protocol.MAC{0x02}, []byte{1, 2, 3})

	select {
	case frame := <-e.Queues.RX:
		require.Equal(t, protocol.MAC{0x02}, frame.MAC)
		require.Equal(t, []byte{1, 2, 3}, frame.Bytes)
	default:
		t.Fatal("expected a queued RX frame")
	}
}

func TestOnSendCompleteDoesNotPanic(t *testing.T) {
	peers := newTestPeers(t)
	clock := providers.NewMemClock(0, 0)
	e, err := New(config.New(), peers, providers.NewMemRadio(), clock, protocol.MAC{0x01}, protocol.DeviceToken{0xAA}, protocol.RoleICM, Deps{})
	require.NoError(t, err)
	e.OnSendComplete(protocol.MAC{0x02}, false)
	e.OnSendComplete(protocol.MAC{0x02}, true)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	peers := newTestPeers(t)
	clock := providers.NewMemClock(0, 0)
	cfg := config.New()
	cfg.LoopInterval = time.Millisecond
	e, err := New(cfg, peers, providers.NewMemRadio(), clock, protocol.MAC{0x01}, protocol.DeviceToken{0xAA}, protocol.RoleICM, Deps{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = e.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
