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
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/easydriveway/meshcore/protocol"
)

// fileKVDoc is the on-disk shape of a FileKV snapshot.
type fileKVDoc struct {
	Ints    map[string]int    `json:"ints"`
	Strings map[string]string `json:"strings"`
	Bools   map[string]bool   `json:"bools"`
}

// FileKV is a JSON-file-backed KVStore: a minimal real persistence
// Provider for hosts (like cmd/meshd) that have no NVS-backed store to
// point the core at, saved on every mutation the way PeerDB expects a
// KVStore write to be immediately durable.
type FileKV struct {
	mu   sync.Mutex
	path string
	doc  fileKVDoc
}

// OpenFileKV loads path if it exists, or starts empty if it does not.
func OpenFileKV(path string) (*FileKV, error) {
	kv := &FileKV{
		path: path,
		doc: fileKVDoc{
			Ints:    make(map[string]int),
			Strings: make(map[string]string),
			Bools:   make(map[string]bool),
		},
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return kv, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return kv, nil
	}
	if err := json.Unmarshal(data, &kv.doc); err != nil {
		return nil, err
	}
	if kv.doc.Ints == nil {
		kv.doc.Ints = make(map[string]int)
	}
	if kv.doc.Strings == nil {
		kv.doc.Strings = make(map[string]string)
	}
	if kv.doc.Bools == nil {
		kv.doc.Bools = make(map[string]bool)
	}
	return kv, nil
}

func (kv *FileKV) saveLocked() error {
	data, err := json.MarshalIndent(kv.doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(kv.path, data, 0o600)
}

// GetInt implements KVStore.
func (kv *FileKV) GetInt(key string, def int) int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if v, ok := kv.doc.Ints[key]; ok {
		return v
	}
	return def
}

// PutInt implements KVStore.
func (kv *FileKV) PutInt(key string, v int) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.doc.Ints[key] = v
	_ = kv.saveLocked()
}

// GetString implements KVStore.
func (kv *FileKV) GetString(key string, def string) string {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if v, ok := kv.doc.Strings[key]; ok {
		return v
	}
	return def
}

// PutString implements KVStore.
func (kv *FileKV) PutString(key string, v string) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.doc.Strings[key] = v
	_ = kv.saveLocked()
}

// GetBool implements KVStore.
func (kv *FileKV) GetBool(key string, def bool) bool {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if v, ok := kv.doc.Bools[key]; ok {
		return v
	}
	return def
}

// PutBool implements KVStore.
func (kv *FileKV) PutBool(key string, v bool) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.doc.Bools[key] = v
	_ = kv.saveLocked()
}

// RemoveKey implements KVStore.
func (kv *FileKV) RemoveKey(key string) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.doc.Ints, key)
	delete(kv.doc.Strings, key)
	delete(kv.doc.Bools, key)
	_ = kv.saveLocked()
}

// Exists implements KVStore.
func (kv *FileKV) Exists(key string) bool {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	_, a := kv.doc.Ints[key]
	_, b := kv.doc.Strings[key]
	_, c := kv.doc.Bools[key]
	return a || b || c
}

// NullRadio is a no-op Radio: it accepts every peer-table mutation and
// every send without touching any hardware, for hosts running the
// engine without a physical or emulated link layer wired in yet.
type NullRadio struct{}

// Init implements Radio.
func (NullRadio) Init(channel uint8) error { return nil }

// AddPeer implements Radio.
func (NullRadio) AddPeer(mac protocol.MAC, channel uint8) error { return nil }

// DelPeer implements Radio.
func (NullRadio) DelPeer(mac protocol.MAC) error { return nil }

// SetChannel implements Radio.
func (NullRadio) SetChannel(channel uint8) error { return nil }

// Send implements Radio.
func (NullRadio) Send(mac protocol.MAC, frame []byte) error { return nil }

// RealClock implements Clock against the host's wall clock, for hosts
// running outside of a test harness. There is no PHC or NTP
// disciplining here: NowMs is monotonic process uptime in milliseconds,
// matching the firmware's millis()-since-boot semantics closely enough
// for retry/heartbeat timing, and UnixSeconds reads time.Now directly.
type RealClock struct {
	boot time.Time
}

// NewRealClock returns a RealClock anchored to the current instant.
func NewRealClock() *RealClock {
	return &RealClock{boot: time.Now()}
}

// NowMs implements Clock.
func (c *RealClock) NowMs() uint64 {
	return uint64(time.Since(c.boot).Milliseconds())
}

// UnixSeconds implements Clock.
func (c *RealClock) UnixSeconds() int64 {
	return time.Now().Unix()
}

// SetUnixSeconds is a no-op: the host wall clock is not ours to step.
func (c *RealClock) SetUnixSeconds(s int64) {}
