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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/easydriveway/meshcore/protocol"
)

func TestAcceptSeqFirstFrameAlwaysAccepted(t *testing.T) {
	var tr seqTracker
	mac := protocol.MAC{0x01}
	require.True(t, tr.AcceptSeq(mac, 100))
}

func TestAcceptSeqRejectsDuplicate(t *testing.T) {
	var tr seqTracker
	mac := protocol.MAC{0x01}
	require.True(t, tr.AcceptSeq(mac, 100))
	require.False(t, tr.AcceptSeq(mac, 100))
}

func TestAcceptSeqRejectsTooOld(t *testing.T) {
	var tr seqTracker
	mac := protocol.MAC{0x01}
	require.True(t, tr.AcceptSeq(mac, 100))
	require.False(t, tr.AcceptSeq(mac, 100-SeqWindowSize))
}

func TestAcceptSeqAcceptsForwardProgress(t *testing.T) {
	var tr seqTracker
	mac := protocol.MAC{0x01}
	require.True(t, tr.AcceptSeq(mac, 100))
	require.True(t, tr.AcceptSeq(mac, 101))
	require.True(t, tr.AcceptSeq(mac, 105))
}

func TestAcceptSeqWrapBoundary(t *testing.T) {
	var tr seqTracker
	mac := protocol.MAC{0x01}
	require.True(t, tr.AcceptSeq(mac, 0xFFFF))
	require.True(t, tr.AcceptSeq(mac, 0x0000))
}

func TestAcceptSeqWithinWindowOutOfOrder(t *testing.T) {
	var tr seqTracker
	mac := protocol.MAC{0x01}
	require.True(t, tr.AcceptSeq(mac, 100))
	require.True(t, tr.AcceptSeq(mac, 110))
	// 105 is behind hi(110) but within the 16-wide window and unseen.
	require.True(t, tr.AcceptSeq(mac, 105))
	// replaying it again must be rejected as duplicate.
	require.False(t, tr.AcceptSeq(mac, 105))
}

func TestAcceptSeqTracksPerMACIndependently(t *testing.T) {
	var tr seqTracker
	mac1 := protocol.MAC{0x01}
	mac2 := protocol.MAC{0x02}
	require.True(t, tr.AcceptSeq(mac1, 5))
	require.True(t, tr.AcceptSeq(mac2, 5))
	require.False(t, tr.AcceptSeq(mac1, 5))
	require.True(t, tr.AcceptSeq(mac2, 6))
}
