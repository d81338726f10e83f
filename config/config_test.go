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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFillsSpecDefaults(t *testing.T) {
	c := New()
	require.Equal(t, []uint64{10, 20, 40}, c.BackoffMs)
	require.Equal(t, uint64(30), c.AckTimeoutMs)
	require.Equal(t, 3, c.ReliableTries)
	require.Equal(t, 1, c.BestEffortTries)
	require.Equal(t, uint64(2000), c.HeartbeatPeriodMs)
	require.Equal(t, uint16(3), c.HeartbeatMissedLimit)
	require.Equal(t, uint8(6), c.DefaultChannel)
}

func TestReadFileOverridesOnlyGivenFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meshd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("heartbeat_period_ms: 5000\n"), 0o644))

	c, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, uint64(5000), c.HeartbeatPeriodMs)
	// Everything else keeps New's default.
	require.Equal(t, uint64(30), c.AckTimeoutMs)
	require.Equal(t, 3, c.ReliableTries)
}

func TestReadFileMissingPathErrors(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestBackoffMatchesBackoffMs(t *testing.T) {
	c := New()
	c.BackoffMs = []uint64{1, 2, 3}
	b := c.Backoff()
	require.Equal(t, uint64(1), b.Delay(0))
	require.Equal(t, uint64(2), b.Delay(1))
	require.Equal(t, uint64(3), b.Delay(2))
	require.Equal(t, uint64(3), b.Delay(99))
}
