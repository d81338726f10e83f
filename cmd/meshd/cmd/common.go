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

package cmd

import (
	"fmt"

	"github.com/easydriveway/meshcore/peerdb"
	"github.com/easydriveway/meshcore/providers"
)

// openPeerDB loads the persisted peer directory at statePath against a
// NullRadio, for management subcommands that only need to read or
// mutate PeerDB state, not run the engine. Every PeerDB mutation saves
// through to statePath immediately via FileKV, so no explicit close or
// flush step is needed.
func openPeerDB() (*peerdb.DB, error) {
	kv, err := providers.OpenFileKV(statePath)
	if err != nil {
		return nil, fmt.Errorf("opening state at %s: %w", statePath, err)
	}
	db := peerdb.New(kv, providers.NullRadio{})
	if err := db.Load(); err != nil {
		return nil, fmt.Errorf("loading peer directory: %w", err)
	}
	return db, nil
}
