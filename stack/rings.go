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

import "github.com/easydriveway/meshcore/protocol"

// MaxAwait and MaxAcked bound the Await and AckRecord rings, matching
// the original firmware's NOW_MAX_AWAIT / NOW_MAX_ACKED.
const (
	MaxAwait = 16
	MaxAcked = 16
)

// AckTimeoutMs is the default window a reliable send waits for a
// reply echoing its sequence number before it is considered timed out.
const AckTimeoutMs = 30

// await is an outstanding reliable send awaiting a reply.
type await struct {
	mac       protocol.MAC
	seq       uint16
	expiresMs uint64 // 0 means the slot is free or already satisfied
}

// acked is a recent positive-ack memo, used so that a reply arriving
// in the brief gap between send-complete and retry-scheduling is not
// missed.
type acked struct {
	mac  protocol.MAC
	seq  uint16
	tsMs uint64
	used bool
}

type awaitRing struct {
	entries [MaxAwait]await
}

// Add records a new outstanding await, evicting a free or already-
// expired slot first, falling back to the slot with the soonest
// deadline (the closest approximation to "oldest" without a separate
// insertion clock).
func (r *awaitRing) Add(mac protocol.MAC, seq uint16, expiresMs uint64) {
	for i := range r.entries {
		if r.entries[i].expiresMs == 0 {
			r.entries[i] = await{mac: mac, seq: seq, expiresMs: expiresMs}
			return
		}
	}
	oldest := 0
	for i := 1; i < MaxAwait; i++ {
		if r.entries[i].expiresMs < r.entries[oldest].expiresMs {
			oldest = i
		}
	}
	r.entries[oldest] = await{mac: mac, seq: seq, expiresMs: expiresMs}
}

// Satisfy clears the await matching (mac, seq), if any, and reports
// whether one was found.
func (r *awaitRing) Satisfy(mac protocol.MAC, seq uint16) bool {
	for i := range r.entries {
		if r.entries[i].expiresMs != 0 && r.entries[i].mac == mac && r.entries[i].seq == seq {
			r.entries[i].expiresMs = 0
			return true
		}
	}
	return false
}

// ReapExpired clears every await whose deadline is at or before now
// and returns the (mac, seq) pairs that timed out.
func (r *awaitRing) ReapExpired(now uint64) []await {
	var timeouts []await
	for i := range r.entries {
		if r.entries[i].expiresMs != 0 && r.entries[i].expiresMs <= now {
			timeouts = append(timeouts, r.entries[i])
			r.entries[i].expiresMs = 0
		}
	}
	return timeouts
}

type ackedRing struct {
	entries [MaxAcked]acked
}

// Add records a positive ack, evicting a free slot first, otherwise
// the slot with the oldest timestamp.
func (r *ackedRing) Add(mac protocol.MAC, seq uint16, tsMs uint64) {
	for i := range r.entries {
		if !r.entries[i].used {
			r.entries[i] = acked{mac: mac, seq: seq, tsMs: tsMs, used: true}
			return
		}
	}
	oldest := 0
	for i := 1; i < MaxAcked; i++ {
		if r.entries[i].tsMs < r.entries[oldest].tsMs {
			oldest = i
		}
	}
	r.entries[oldest] = acked{mac: mac, seq: seq, tsMs: tsMs, used: true}
}

// Contains reports whether (mac, seq) was already positively acked.
func (r *ackedRing) Contains(mac protocol.MAC, seq uint16) bool {
	for i := range r.entries {
		if r.entries[i].used && r.entries[i].mac == mac && r.entries[i].seq == seq {
			return true
		}
	}
	return false
}
