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
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var topoCmd = &cobra.Command{
	Use:   "topo",
	Short: "Manage the device-wide topology credential",
}

var topoSetTokenCmd = &cobra.Command{
	Use:   "set-token <token-hex>",
	Short: "Set the device-wide topology token and bump its version",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ConfigureVerbosity()
		tok, err := parseToken(args[0])
		if err != nil {
			return err
		}
		db, err := openPeerDB()
		if err != nil {
			return err
		}
		db.SetTopoToken(tok)
		db.SetTopoVersion(db.TopoVersion() + 1)
		fmt.Printf("topology token set, version now %d\n", db.TopoVersion())
		return nil
	},
}

var topoShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current topology token and version",
	RunE: func(c *cobra.Command, args []string) error {
		ConfigureVerbosity()
		db, err := openPeerDB()
		if err != nil {
			return err
		}
		tok, ok := db.TopoToken()
		if !ok {
			fmt.Println("no topology token set")
			return nil
		}
		fmt.Printf("token=%s version=%d\n", hex.EncodeToString(tok[:]), db.TopoVersion())
		return nil
	},
}

func init() {
	RootCmd.AddCommand(topoCmd)
	topoCmd.AddCommand(topoSetTokenCmd, topoShowCmd)
}
