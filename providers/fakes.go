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

package providers

import (
	"sync"

	"github.com/easydriveway/meshcore/protocol"
)

// MemKV is an in-memory KVStore, standing in for a real persisted
// store in tests the way ptp4u's JSON stats fake stands in for a
// metrics backend.
type MemKV struct {
	mu       sync.Mutex
	ints     map[string]int
	strings  map[string]string
	bools    map[string]bool
}

// NewMemKV returns an empty in-memory KVStore.
func NewMemKV() *MemKV {
	return &MemKV{
		ints:    make(map[string]int),
		strings: make(map[string]string),
		bools:   make(map[string]bool),
	}
}

// GetInt implements KVStore.
func (m *MemKV) GetInt(key string, def int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.ints[key]; ok {
		return v
	}
	return def
}

// PutInt implements KVStore.
func (m *MemKV) PutInt(key string, v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[key] = v
}

// GetString implements KVStore.
func (m *MemKV) GetString(key string, def string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.strings[key]; ok {
		return v
	}
	return def
}

// PutString implements KVStore.
func (m *MemKV) PutString(key string, v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = v
}

// GetBool implements KVStore.
func (m *MemKV) GetBool(key string, def bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.bools[key]; ok {
		return v
	}
	return def
}

// PutBool implements KVStore.
func (m *MemKV) PutBool(key string, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bools[key] = v
}

// RemoveKey implements KVStore.
func (m *MemKV) RemoveKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ints, key)
	delete(m.strings, key)
	delete(m.bools, key)
}

// Exists implements KVStore.
func (m *MemKV) Exists(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, a := m.ints[key]
	_, b := m.strings[key]
	_, c := m.bools[key]
	return a || b || c
}

// MemRadio is an in-memory Radio fake that records peer table mutations
// and appends every sent frame to Sent, rather than touching a real NIC.
// Sent frames are not delivered anywhere.
type MemRadio struct {
	mu      sync.Mutex
	channel uint8
	peers   map[protocol.MAC]uint8
	Sent    []SentFrame
}

// SentFrame records one call to Send, for test assertions.
type SentFrame struct {
	MAC   protocol.MAC
	Frame []byte
}

// NewMemRadio returns an empty in-memory Radio.
func NewMemRadio() *MemRadio {
	return &MemRadio{peers: make(map[protocol.MAC]uint8)}
}

// Init implements Radio.
func (r *MemRadio) Init(channel uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channel = channel
	return nil
}

// AddPeer implements Radio.
func (r *MemRadio) AddPeer(mac protocol.MAC, channel uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[mac] = channel
	return nil
}

// DelPeer implements Radio.
func (r *MemRadio) DelPeer(mac protocol.MAC) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, mac)
	return nil
}

// SetChannel implements Radio.
func (r *MemRadio) SetChannel(channel uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channel = channel
	for mac := range r.peers {
		r.peers[mac] = channel
	}
	return nil
}

// Send implements Radio.
func (r *MemRadio) Send(mac protocol.MAC, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := append([]byte(nil), frame...)
	r.Sent = append(r.Sent, SentFrame{MAC: mac, Frame: cp})
	return nil
}

// PeerChannel returns the channel MemRadio has mirrored mac onto, and
// whether mac is currently a mirrored peer.
func (r *MemRadio) PeerChannel(mac protocol.MAC) (uint8, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.peers[mac]
	return ch, ok
}

// MemClock is a settable Clock fake.
type MemClock struct {
	mu     sync.Mutex
	nowMs  uint64
	unixS  int64
}

// NewMemClock returns a MemClock starting at the given monotonic and
// wall-clock values.
func NewMemClock(nowMs uint64, unixSeconds int64) *MemClock {
	return &MemClock{nowMs: nowMs, unixS: unixSeconds}
}

// NowMs implements Clock.
func (c *MemClock) NowMs() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowMs
}

// Advance moves the monotonic clock forward by deltaMs.
func (c *MemClock) Advance(deltaMs uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowMs += deltaMs
}

// UnixSeconds implements Clock.
func (c *MemClock) UnixSeconds() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unixS
}

// SetUnixSeconds implements Clock.
func (c *MemClock) SetUnixSeconds(s int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unixS = s
}

// MemPMSTelemetry is a settable PMSTelemetry fake.
type MemPMSTelemetry struct {
	mu        sync.Mutex
	Vbus      uint16
	Vsys      uint16
	Iout      int16
	FaultBits uint16
	Temp      int16
}

// VbusMV implements PMSTelemetry.
func (m *MemPMSTelemetry) VbusMV() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Vbus
}

// VsysMV implements PMSTelemetry.
func (m *MemPMSTelemetry) VsysMV() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Vsys
}

// IoutMA implements PMSTelemetry.
func (m *MemPMSTelemetry) IoutMA() int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Iout
}

// Faults implements PMSTelemetry.
func (m *MemPMSTelemetry) Faults() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FaultBits
}

// TempC10 implements PMSTelemetry.
func (m *MemPMSTelemetry) TempC10() int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Temp
}

// Set updates every telemetry field at once, under one lock.
func (m *MemPMSTelemetry) Set(vbus, vsys uint16, iout int16, faults uint16, tempC10 int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Vbus, m.Vsys, m.Iout, m.FaultBits, m.Temp = vbus, vsys, iout, faults, tempC10
}

// MemCooling is a settable Cooling fake.
type MemCooling struct {
	mu  sync.Mutex
	pct uint8
}

// SetSpeedPct implements Cooling.
func (c *MemCooling) SetSpeedPct(pct uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pct = pct
}

// SpeedPct implements Cooling.
func (c *MemCooling) SpeedPct() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pct
}

// MemRelay is an in-memory Relay fake backed by a fixed channel count.
type MemRelay struct {
	mu    sync.Mutex
	state []bool
}

// NewMemRelay returns a MemRelay with n channels, all off.
func NewMemRelay(n uint16) *MemRelay {
	return &MemRelay{state: make([]bool, n)}
}

// Channels implements Relay.
func (r *MemRelay) Channels() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint16(len(r.state))
}

// Set implements Relay.
func (r *MemRelay) Set(channel uint16, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(channel) >= len(r.state) {
		return
	}
	r.state[channel] = on
}

// Toggle implements Relay.
func (r *MemRelay) Toggle(channel uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(channel) >= len(r.state) {
		return
	}
	r.state[channel] = !r.state[channel]
}

// Get implements Relay.
func (r *MemRelay) Get(channel uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(channel) >= len(r.state) {
		return false
	}
	return r.state[channel]
}

// MemSENSTelemetry is a settable SENSTelemetry fake.
type MemSENSTelemetry struct {
	mu          sync.Mutex
	lux         float32
	isDay       bool
	tempC10     int16
	tempPresent bool
	pairs       []SensPairSnapshot
}

// NewMemSENSTelemetry returns a MemSENSTelemetry reading daylight with
// no temperature sensor and no beam-break pairs configured.
func NewMemSENSTelemetry() *MemSENSTelemetry {
	return &MemSENSTelemetry{isDay: true}
}

// Lux implements SENSTelemetry.
func (s *MemSENSTelemetry) Lux() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lux
}

// IsDay implements SENSTelemetry.
func (s *MemSENSTelemetry) IsDay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isDay
}

// TempC10 implements SENSTelemetry.
func (s *MemSENSTelemetry) TempC10() (int16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempC10, s.tempPresent
}

// Pairs implements SENSTelemetry.
func (s *MemSENSTelemetry) Pairs() []SensPairSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairs
}

// Set updates every telemetry field at once, under one lock.
func (s *MemSENSTelemetry) Set(lux float32, isDay bool, tempC10 int16, tempPresent bool, pairs []SensPairSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lux, s.isDay, s.tempC10, s.tempPresent, s.pairs = lux, isDay, tempC10, tempPresent, pairs
}
