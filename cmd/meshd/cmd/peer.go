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
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/easydriveway/meshcore/peerdb"
)

func enabledString(enabled bool) string {
	if enabled {
		return color.GreenString("enabled")
	}
	return color.RedString("disabled")
}

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Manage the local node's peer directory",
}

var peerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every peer in the directory",
	RunE: func(c *cobra.Command, args []string) error {
		ConfigureVerbosity()
		db, err := openPeerDB()
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetColWidth(20)
		table.SetHeader([]string{"mac", "role", "name", "token", "enabled"})
		for _, p := range db.All() {
			table.Append([]string{
				p.MAC.String(),
				p.Role.String(),
				p.Name,
				hex.EncodeToString(p.Token[:]),
				enabledString(p.Enabled),
			})
		}
		table.Render()
		return nil
	},
}

var peerAddCmd = &cobra.Command{
	Use:   "add <mac> <role> <token> [name]",
	Short: "Add a peer to the directory",
	Args:  cobra.RangeArgs(3, 4),
	RunE: func(c *cobra.Command, args []string) error {
		ConfigureVerbosity()
		mac, err := parseMAC(args[0])
		if err != nil {
			return err
		}
		role, err := parseRole(args[1])
		if err != nil {
			return err
		}
		token, err := parseToken(args[2])
		if err != nil {
			return err
		}
		name := ""
		if len(args) == 4 {
			name = args[3]
		}
		db, err := openPeerDB()
		if err != nil {
			return err
		}
		res, err := db.Add(mac, role, token, name, true)
		if err != nil {
			return err
		}
		switch res {
		case peerdb.AddOK:
			fmt.Printf("added %s as %s\n", mac, role)
		case peerdb.AddExists:
			fmt.Printf("%s already in directory\n", mac)
		}
		return nil
	},
}

var peerEnableCmd = &cobra.Command{
	Use:   "enable <mac>",
	Short: "Enable a peer",
	Args:  cobra.ExactArgs(1),
	RunE:  peerSetEnabled(true),
}

var peerDisableCmd = &cobra.Command{
	Use:   "disable <mac>",
	Short: "Disable a peer",
	Args:  cobra.ExactArgs(1),
	RunE:  peerSetEnabled(false),
}

func peerSetEnabled(enabled bool) func(*cobra.Command, []string) error {
	return func(c *cobra.Command, args []string) error {
		ConfigureVerbosity()
		mac, err := parseMAC(args[0])
		if err != nil {
			return err
		}
		db, err := openPeerDB()
		if err != nil {
			return err
		}
		found, err := db.Enable(mac, enabled)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s not found", mac)
		}
		fmt.Printf("%s enabled=%v\n", mac, enabled)
		return nil
	}
}

var peerRemoveCmd = &cobra.Command{
	Use:   "remove <mac>",
	Short: "Remove a peer from the directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ConfigureVerbosity()
		mac, err := parseMAC(args[0])
		if err != nil {
			return err
		}
		db, err := openPeerDB()
		if err != nil {
			return err
		}
		found, err := db.Remove(mac)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s not found", mac)
		}
		fmt.Printf("removed %s\n", mac)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(peerCmd)
	peerCmd.AddCommand(peerListCmd, peerAddCmd, peerEnableCmd, peerDisableCmd, peerRemoveCmd)
}
