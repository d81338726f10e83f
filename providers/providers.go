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

// Package providers declares the external collaborators the mesh core
// consumes but does not implement: persistent key-value storage, the
// radio shim, the system clock, and per-role telemetry sources. Real
// deployments supply ESP-NOW/NVS-backed implementations; this package
// also ships small in-memory fakes used throughout the test suite.
package providers

import "github.com/easydriveway/meshcore/protocol"

// KVStore is a typed key-value interface. Keys are always 6 characters
// or fewer, matching the persisted peer-table layout.
type KVStore interface {
	GetInt(key string, def int) int
	PutInt(key string, v int)
	GetString(key string, def string) string
	PutString(key string, v string)
	GetBool(key string, def bool) bool
	PutBool(key string, v bool)
	RemoveKey(key string)
	Exists(key string) bool
}

// Radio is the link-layer shim: fire/forget send plus peer table
// mirroring. Callbacks run outside the engine's cooperative loop and
// must only enqueue; they never touch PeerDB or adapter state directly.
type Radio interface {
	Init(channel uint8) error
	AddPeer(mac protocol.MAC, channel uint8) error
	DelPeer(mac protocol.MAC) error
	SetChannel(channel uint8) error
	Send(mac protocol.MAC, frame []byte) error
}

// RadioCallbacks is implemented by the engine and invoked by a Radio
// implementation on frame receipt and on send completion.
type RadioCallbacks interface {
	OnRecv(mac protocol.MAC, frame []byte)
	OnSendComplete(mac protocol.MAC, ok bool)
}

// Clock exposes monotonic and wall-clock time to the core.
type Clock interface {
	NowMs() uint64
	UnixSeconds() int64
	SetUnixSeconds(s int64)
}

// PMSTelemetry supplies the electrical and thermal measurements the
// PMS adapter cannot derive on its own.
type PMSTelemetry interface {
	VbusMV() uint16
	VsysMV() uint16
	IoutMA() int16
	Faults() uint16
	TempC10() int16
}

// Cooling is the fan-duty control surface the PMS adapter drives in
// response to a COOL config write.
type Cooling interface {
	SetSpeedPct(pct uint8)
	SpeedPct() uint8
}

// Relay is the physical or emulated relay bank the REL and REMU
// adapters drive. Channels is the number of channels actually wired;
// Set/Toggle/Get on an out-of-range channel is the caller's
// responsibility to avoid.
type Relay interface {
	Channels() uint16
	Set(channel uint16, on bool)
	Toggle(channel uint16)
	Get(channel uint16) bool
}

// SensPairSnapshot is one TF-Luna beam-break reading.
type SensPairSnapshot struct {
	Index     uint8
	PresentA  bool
	PresentB  bool
	Direction uint8
	RateHz    uint8
}

// SENSTelemetry supplies a point-in-time snapshot of ambient light and
// beam-break pairs for the SENS adapter.
type SENSTelemetry interface {
	Lux() float32
	IsDay() bool
	TempC10() (value int16, present bool)
	Pairs() []SensPairSnapshot
}
