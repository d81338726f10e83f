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

	"github.com/spf13/cobra"
)

var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Manage the local node's radio channel",
}

var channelSetCmd = &cobra.Command{
	Use:   "set <1-13>",
	Short: "Set the persisted radio channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ConfigureVerbosity()
		ch, err := parseUint8(args[0])
		if err != nil {
			return err
		}
		db, err := openPeerDB()
		if err != nil {
			return err
		}
		if err := db.SetChannel(ch); err != nil {
			return err
		}
		fmt.Printf("channel set to %d\n", ch)
		return nil
	},
}

var channelShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted radio channel",
	RunE: func(c *cobra.Command, args []string) error {
		ConfigureVerbosity()
		db, err := openPeerDB()
		if err != nil {
			return err
		}
		fmt.Printf("channel=%d\n", db.Channel())
		return nil
	},
}

func init() {
	RootCmd.AddCommand(channelCmd)
	channelCmd.AddCommand(channelSetCmd, channelShowCmd)
}
