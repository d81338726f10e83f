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

// Package router enforces role-privilege and topology-gate policy and
// dispatches admitted frames to the local role adapter.
package router

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/easydriveway/meshcore/protocol"
	"github.com/easydriveway/meshcore/stack"
)

// Adapter is the capability every role implementation exposes to the
// router. Reply headers must echo the caller's Seq so the caller's ACK
// matcher can correlate.
type Adapter interface {
	Role() protocol.Role
	Handle(srcMac protocol.MAC, in *protocol.Packet) (out *protocol.Packet, handled bool, err error)
	Tick(nowMs uint64)
}

// RequiresTopo reports whether msg is in the topology-bound opcode set
// that must carry HAS_TOPO to be admitted by policy.
func RequiresTopo(msg protocol.MsgType) bool {
	switch msg {
	case protocol.MsgCtrlRelay, protocol.MsgConfigWrite, protocol.MsgTopoPush:
		return true
	default:
		return false
	}
}

// AllowedByRole enforces the role-privilege gate: some opcodes may
// only originate from a specific sender role.
func AllowedByRole(msg protocol.MsgType, senderRole protocol.Role) bool {
	if msg == protocol.MsgTopoPush || msg == protocol.MsgNetSetChan || msg == protocol.MsgTimeSync || msg.IsFirmwareOp() {
		return senderRole == protocol.RoleICM
	}
	if msg == protocol.MsgSensReport {
		return senderRole == protocol.RoleSENS || senderRole == protocol.RoleSEMU
	}
	if msg == protocol.MsgPmsStatus {
		return senderRole == protocol.RolePMS
	}
	return true
}

// Router holds the local role's adapter and dispatches admitted
// frames to it, enforcing the privilege and topology gates first.
type Router struct {
	adapter Adapter

	mu         sync.Mutex
	seenUnimpl map[protocol.MsgType]bool
}

// New constructs a Router serving the given local adapter.
func New(adapter Adapter) *Router {
	return &Router{adapter: adapter, seenUnimpl: make(map[protocol.MsgType]bool)}
}

// Route implements stack.Router.
func (r *Router) Route(srcMac protocol.MAC, in *protocol.Packet, sender stack.Sender) (stack.RouteResult, error) {
	if r.adapter == nil {
		log.WithField("local_role", "none").Warning("router: no adapter for local role")
		return stack.RouteNoAdapter, nil
	}

	if !AllowedByRole(in.Header.MsgType, in.Header.SenderRole) {
		log.WithFields(log.Fields{"msg": in.Header.MsgType, "sender_role": in.Header.SenderRole}).
			Debug("router: privilege gate rejected frame")
		return stack.RoutePolicy, nil
	}

	if RequiresTopo(in.Header.MsgType) && !in.HasTopo() {
		log.WithField("msg", in.Header.MsgType).Debug("router: topology gate rejected frame (HAS_TOPO missing)")
		return stack.RoutePolicy, nil
	}

	out, handled, err := r.adapter.Handle(srcMac, in)
	if err != nil {
		return stack.RoutePolicy, err
	}
	if !handled {
		r.markUnimplementedOnce(in.Header.MsgType)
		return stack.RouteUnimplemented, nil
	}

	if out != nil && len(out.Bytes()) > 0 {
		sender.Send(srcMac, out, out.Reliable())
	}
	return stack.RouteOK, nil
}

func (r *Router) markUnimplementedOnce(msg protocol.MsgType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seenUnimpl[msg] {
		return
	}
	r.seenUnimpl[msg] = true
	log.WithFields(log.Fields{"msg": msg, "role": r.adapter.Role()}).Info("router: unimplemented opcode for local role")
}
