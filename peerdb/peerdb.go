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

// Package peerdb persists the peer directory and the device-wide
// topology credential in a typed key-value store, and mirrors enabled
// peers into the radio peer table.
package peerdb

import (
	"encoding/hex"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/providers"
)

// key layout (<=6 chars), mirroring the original firmware's NVS schema:
//
// Global:
//   "PECNT0" int    number of peers
//   "SELFRO" int    self role
//   "NOWCHN" int    channel hint (1..13)
//   "TVER0"  int    device-wide topology version
//   "TTOK0"  string device-wide topology token, 32-hex
//
// Per-peer slot i, 3-digit index:
//   "PEM%03d" string MAC, 12-hex
//   "PER%03d" int    role
//   "PEN%03d" string name (<=15 bytes)
//   "PET%03d" string token, 32-hex
//   "PEE%03d" bool   enabled
//   "PEV%03d" int    per-peer observed topology version

const (
	keyCount       = "PECNT0"
	keySelfRole    = "SELFRO"
	keyChannel     = "NOWCHN"
	keyTopoVersion = "TVER0"
	keyTopoToken   = "TTOK0"

	defaultChannel = 6
	staleWipeSpan  = 64
)

func keyMAC(i int) string   { return fmt.Sprintf("PEM%03d", i) }
func keyRole(i int) string  { return fmt.Sprintf("PER%03d", i) }
func keyName(i int) string  { return fmt.Sprintf("PEN%03d", i) }
func keyTok(i int) string   { return fmt.Sprintf("PET%03d", i) }
func keyEn(i int) string    { return fmt.Sprintf("PEE%03d", i) }
func keyTopov(i int) string { return fmt.Sprintf("PEV%03d", i) }

// Peer is one persisted directory entry.
type Peer struct {
	MAC     protocol.MAC
	Role    protocol.Role
	Name    string
	Token   protocol.DeviceToken
	Enabled bool
	TopoVer uint32
}

// AddResult reports the outcome of DB.Add.
type AddResult int

// Add outcomes.
const (
	AddOK AddResult = iota
	AddExists
	AddErr
)

// DB is the peer directory: a contiguous slot table backed by a
// KVStore, mirrored into a Radio peer table for enabled peers.
type DB struct {
	mu    sync.Mutex
	kv    providers.KVStore
	radio providers.Radio

	peers []Peer

	channel  uint8
	selfRole protocol.Role

	hasTopo  bool
	topoTok  protocol.TopologyToken
	topoVer  uint16
}

// New constructs a DB over kv and radio. Call Load to populate it from
// persisted state.
func New(kv providers.KVStore, radio providers.Radio) *DB {
	return &DB{kv: kv, radio: radio, channel: defaultChannel}
}

// Load reads global settings and the peer slot table from the KV
// store, then mirrors every enabled peer into the radio peer table on
// the loaded channel.
func (d *DB) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.kv != nil {
		d.channel = uint8(d.kv.GetInt(keyChannel, defaultChannel))
		d.selfRole = protocol.Role(d.kv.GetInt(keySelfRole, 0))
		d.topoVer = uint16(d.kv.GetInt(keyTopoVersion, 0))
		if tok := d.kv.GetString(keyTopoToken, ""); len(tok) == 32 {
			if raw, err := hex.DecodeString(tok); err == nil {
				copy(d.topoTok[:], raw)
				d.hasTopo = true
			}
		}
	}

	if err := d.loadAllLocked(); err != nil {
		return err
	}

	if d.radio != nil {
		for _, p := range d.peers {
			if p.Enabled {
				if err := d.syncRadioPeerLocked(p, true); err != nil {
					log.WithError(err).WithField("mac", p.MAC).Warning("peerdb: failed to mirror peer on load")
				}
			}
		}
	}
	return nil
}

func (d *DB) loadAllLocked() error {
	d.peers = nil
	if d.kv == nil {
		return nil
	}
	count := d.kv.GetInt(keyCount, 0)
	if count < 0 {
		count = 0
	}
	for i := 0; i < count; i++ {
		macHex := d.kv.GetString(keyMAC(i), "")
		if len(macHex) != 12 {
			continue
		}
		raw, err := hex.DecodeString(macHex)
		if err != nil {
			continue
		}
		var p Peer
		copy(p.MAC[:], raw)
		p.Role = protocol.Role(d.kv.GetInt(keyRole(i), 0))
		p.Name = d.kv.GetString(keyName(i), "")
		if tok := d.kv.GetString(keyTok(i), ""); len(tok) == 32 {
			if rawTok, err := hex.DecodeString(tok); err == nil {
				copy(p.Token[:], rawTok)
			}
		}
		p.Enabled = d.kv.GetBool(keyEn(i), false)
		p.TopoVer = uint32(d.kv.GetInt(keyTopov(i), 0))
		d.peers = append(d.peers, p)
	}
	return nil
}

func (d *DB) saveSlotLocked(i int, p Peer) {
	if d.kv == nil {
		return
	}
	d.kv.PutString(keyMAC(i), hex.EncodeToString(p.MAC[:]))
	d.kv.PutInt(keyRole(i), int(p.Role))
	d.kv.PutString(keyName(i), p.Name)
	d.kv.PutString(keyTok(i), hex.EncodeToString(p.Token[:]))
	d.kv.PutBool(keyEn(i), p.Enabled)
	d.kv.PutInt(keyTopov(i), int(p.TopoVer))
}

func (d *DB) clearStaleFromLocked(start int) {
	if d.kv == nil {
		return
	}
	for i := start; i < start+staleWipeSpan; i++ {
		d.kv.RemoveKey(keyMAC(i))
		d.kv.RemoveKey(keyRole(i))
		d.kv.RemoveKey(keyName(i))
		d.kv.RemoveKey(keyTok(i))
		d.kv.RemoveKey(keyEn(i))
		d.kv.RemoveKey(keyTopov(i))
	}
}

func (d *DB) saveAllLocked() error {
	if d.kv == nil {
		return nil
	}
	oldCount := d.kv.GetInt(keyCount, 0)
	newCount := len(d.peers)
	d.kv.PutInt(keyCount, newCount)
	for i, p := range d.peers {
		d.saveSlotLocked(i, p)
	}
	if oldCount > newCount {
		d.clearStaleFromLocked(newCount)
	}
	return nil
}

func (d *DB) syncRadioPeerLocked(p Peer, add bool) error {
	if d.radio == nil {
		return nil
	}
	if add {
		_ = d.radio.DelPeer(p.MAC)
		return d.radio.AddPeer(p.MAC, d.channel)
	}
	return d.radio.DelPeer(p.MAC)
}

func (d *DB) findByMACLocked(mac protocol.MAC) (int, *Peer) {
	for i := range d.peers {
		if d.peers[i].MAC == mac {
			return i, &d.peers[i]
		}
	}
	return -1, nil
}

// Add inserts a new peer, idempotent on MAC: calling it again for the
// same MAC returns AddExists without mutating state. If enabled, the
// peer is mirrored into the radio peer table on the current channel.
func (d *DB) Add(mac protocol.MAC, role protocol.Role, token protocol.DeviceToken, name string, enabled bool) (AddResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, existing := d.findByMACLocked(mac); existing != nil {
		return AddExists, nil
	}

	if len(name) > 15 {
		name = name[:15]
	}
	p := Peer{MAC: mac, Role: role, Name: name, Token: token, Enabled: enabled}
	d.peers = append(d.peers, p)
	if err := d.saveAllLocked(); err != nil {
		return AddErr, err
	}
	if enabled {
		if err := d.syncRadioPeerLocked(p, true); err != nil {
			return AddErr, err
		}
	}
	log.WithFields(log.Fields{"mac": mac, "role": role}).Info("peerdb: peer added")
	return AddOK, nil
}

// Enable toggles a peer's enabled flag, persists it, and mirrors the
// change into the radio peer table. Calling it with the peer's current
// state is a no-op that still reports success.
func (d *DB) Enable(mac protocol.MAC, enabled bool) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, p := d.findByMACLocked(mac)
	if p == nil {
		return false, nil
	}
	if p.Enabled == enabled {
		return true, nil
	}
	p.Enabled = enabled
	if err := d.saveAllLocked(); err != nil {
		return false, err
	}
	if err := d.syncRadioPeerLocked(*p, enabled); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes a peer, unmirroring it from the radio table first if
// it was enabled.
func (d *DB) Remove(mac protocol.MAC) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx, p := d.findByMACLocked(mac)
	if p == nil {
		return false, nil
	}
	if p.Enabled {
		if err := d.syncRadioPeerLocked(*p, false); err != nil {
			return false, err
		}
	}
	d.peers = append(d.peers[:idx], d.peers[idx+1:]...)
	if err := d.saveAllLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// FindByMAC returns a copy of the peer with the given MAC, or false if
// none is registered.
func (d *DB) FindByMAC(mac protocol.MAC) (Peer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, p := d.findByMACLocked(mac)
	if p == nil {
		return Peer{}, false
	}
	return *p, true
}

// TokenMatches reports whether mac names an enabled peer whose stored
// token equals token.
func (d *DB) TokenMatches(mac protocol.MAC, token protocol.DeviceToken) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, p := d.findByMACLocked(mac)
	return p != nil && p.Enabled && p.Token == token
}

// SetChannel validates and persists a new channel, then re-mirrors
// every enabled peer onto it. A failure mirroring one peer does not
// roll back the others.
func (d *DB) SetChannel(ch uint8) error {
	if ch < 1 || ch > 13 {
		return fmt.Errorf("peerdb: channel %d out of range [1,13]", ch)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channel = ch
	if d.kv != nil {
		d.kv.PutInt(keyChannel, int(ch))
	}
	if d.radio != nil {
		if err := d.radio.SetChannel(ch); err != nil {
			return err
		}
	}
	for _, p := range d.peers {
		if p.Enabled {
			if err := d.syncRadioPeerLocked(p, true); err != nil {
				log.WithError(err).WithField("mac", p.MAC).Warning("peerdb: channel migration failed for peer")
			}
		}
	}
	return nil
}

// Channel returns the persisted channel.
func (d *DB) Channel() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channel
}

// SetSelfRole persists this device's own role.
func (d *DB) SetSelfRole(r protocol.Role) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selfRole = r
	if d.kv != nil {
		d.kv.PutInt(keySelfRole, int(r))
	}
}

// SelfRole returns this device's own role.
func (d *DB) SelfRole() protocol.Role {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selfRole
}

// SetTopoToken persists the device-wide topology token.
func (d *DB) SetTopoToken(tok protocol.TopologyToken) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.topoTok = tok
	d.hasTopo = true
	if d.kv != nil {
		d.kv.PutString(keyTopoToken, hex.EncodeToString(tok[:]))
	}
}

// TopoToken returns the device-wide topology token, if one is set.
func (d *DB) TopoToken() (protocol.TopologyToken, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.topoTok, d.hasTopo
}

// SetTopoVersion persists the device-wide topology version.
func (d *DB) SetTopoVersion(v uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.topoVer = v
	if d.kv != nil {
		d.kv.PutInt(keyTopoVersion, int(v))
	}
}

// TopoVersion returns the device-wide topology version.
func (d *DB) TopoVersion() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.topoVer
}

// TopoTokenMatches reports whether tok equals the device-wide
// topology token.
func (d *DB) TopoTokenMatches(tok protocol.TopologyToken) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasTopo && d.topoTok == tok
}

// All returns a snapshot copy of every peer in the directory.
func (d *DB) All() []Peer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Peer, len(d.peers))
	copy(out, d.peers)
	return out
}
