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

import "fmt"

// ParseError classifies why Parse rejected a buffer.
type ParseError int

// Parse error values.
const (
	ParseOK ParseError = iota
	ParseTooSmall
	ParseBadVersion
	ParseFlagMismatch
	ParseOverflow
)

func (e ParseError) Error() string {
	switch e {
	case ParseTooSmall:
		return "frame too small"
	case ParseBadVersion:
		return "unsupported protocol version"
	case ParseFlagMismatch:
		return "HAS_TOPO flag does not match topology token presence"
	case ParseOverflow:
		return "frame exceeds maximum size"
	default:
		return "ok"
	}
}

// Packet is a parsed or composed frame: a single backing buffer plus
// typed views into its header, tokens, and body. Parse is pure and
// side-effect-free; all admission and routing policy lives above this
// package.
type Packet struct {
	Header  Header
	Dev     DeviceToken
	Topo    *TopologyToken // nil unless HAS_TOPO was set
	Body    []byte
	buf     []byte
}

// HasTopo reports whether the packet carries a topology token.
func (p *Packet) HasTopo() bool {
	return p.Topo != nil
}

// Reliable reports whether the frame's RELIABLE flag is set.
func (p *Packet) Reliable() bool {
	return p.Header.Flags.Has(FlagReliable)
}

// wirePrefixLen is the number of bytes before Body: header + device
// token, plus a topology token when present.
func wirePrefixLen(hasTopo bool) int {
	n := HeaderSize + DeviceTokenSize
	if hasTopo {
		n += TopologyTokenSize
	}
	return n
}

// Compose lays out header, device token, optional topology token, and
// body into a fresh backing buffer and returns a Packet view over it.
//
// It validates: ProtoVer == Version; the HAS_TOPO flag matches whether
// a topology token was supplied (both present or both absent); and
// that prefix+body does not exceed MaxFrame.
func Compose(h Header, dev DeviceToken, topo *TopologyToken, body []byte) (*Packet, error) {
	if h.ProtoVer != Version {
		return nil, fmt.Errorf("protocol: compose: %w", ParseBadVersion)
	}
	hasTopo := h.Flags.Has(FlagHasTopo)
	if hasTopo != (topo != nil) {
		return nil, fmt.Errorf("protocol: compose: %w", ParseFlagMismatch)
	}
	if len(body) > MaxBody {
		return nil, fmt.Errorf("protocol: compose: body length %d exceeds max %d", len(body), MaxBody)
	}
	prefix := wirePrefixLen(hasTopo)
	total := prefix + len(body)
	if total > MaxFrame {
		return nil, fmt.Errorf("protocol: compose: %w", ParseOverflow)
	}

	buf := make([]byte, total)
	n := headerMarshalBinaryTo(&h, buf)
	copy(buf[n:], dev[:])
	n += DeviceTokenSize
	if hasTopo {
		copy(buf[n:], topo[:])
		n += TopologyTokenSize
	}
	copy(buf[n:], body)

	pkt := &Packet{Header: h, Dev: dev, buf: buf}
	if hasTopo {
		t := *topo
		pkt.Topo = &t
	}
	pkt.Body = pkt.buf[prefix:]
	return pkt, nil
}

// Parse decodes a raw frame into a Packet. It never mutates caller
// state and never invokes upper layers; all it does is validate
// structure and expose typed views.
func Parse(b []byte) (*Packet, error) {
	if len(b) > MaxFrame {
		return nil, fmt.Errorf("protocol: parse: %w", ParseOverflow)
	}
	if len(b) < HeaderSize+DeviceTokenSize {
		return nil, fmt.Errorf("protocol: parse: %w", ParseTooSmall)
	}

	var h Header
	unmarshalHeader(&h, b)
	if h.ProtoVer != Version {
		return nil, fmt.Errorf("protocol: parse: %w", ParseBadVersion)
	}

	hasTopo := h.Flags.Has(FlagHasTopo)
	prefix := wirePrefixLen(hasTopo)
	if len(b) < prefix {
		return nil, fmt.Errorf("protocol: parse: %w", ParseFlagMismatch)
	}

	pkt := &Packet{Header: h, buf: b}
	copy(pkt.Dev[:], b[HeaderSize:HeaderSize+DeviceTokenSize])
	if hasTopo {
		var t TopologyToken
		copy(t[:], b[HeaderSize+DeviceTokenSize:prefix])
		pkt.Topo = &t
	}
	pkt.Body = b[prefix:]
	return pkt, nil
}

// Bytes returns the packet's full wire representation.
func (p *Packet) Bytes() []byte {
	return p.buf
}
