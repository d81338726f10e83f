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

// Package cmd implements the meshd command line: a node that runs the
// mesh engine (serve) and a set of management subcommands against its
// peer directory and topology state.
package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/easydriveway/meshcore/protocol"
)

// RootCmd is meshd's entry point, exported so alternate front ends can
// add their own subcommands without touching the core ones.
var RootCmd = &cobra.Command{
	Use:   "meshd",
	Short: "EasyDriveway mesh node daemon and peer management CLI",
}

var (
	verbose  bool
	statePath string
)

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	RootCmd.PersistentFlags().StringVar(&statePath, "state", "meshd.json", "path to the persisted peer/topology key-value store")
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
}

// ConfigureVerbosity applies the parsed --verbose flag. Every
// subcommand that touches the engine calls this first.
func ConfigureVerbosity() {
	log.SetLevel(log.InfoLevel)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

// Execute is the main entry point for the CLI.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// parseMAC accepts "aabbccddeeff" or "aa:bb:cc:dd:ee:ff".
func parseMAC(s string) (protocol.MAC, error) {
	var mac protocol.MAC
	clean := strings.ReplaceAll(s, ":", "")
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return mac, fmt.Errorf("bad MAC %q: %w", s, err)
	}
	if len(raw) != len(mac) {
		return mac, fmt.Errorf("bad MAC %q: want %d bytes, got %d", s, len(mac), len(raw))
	}
	copy(mac[:], raw)
	return mac, nil
}

// parseToken accepts a 32-hex-char device or topology token.
func parseToken(s string) ([16]byte, error) {
	var tok [16]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return tok, fmt.Errorf("bad token %q: %w", s, err)
	}
	if len(raw) != len(tok) {
		return tok, fmt.Errorf("bad token %q: want %d bytes, got %d", s, len(tok), len(raw))
	}
	copy(tok[:], raw)
	return tok, nil
}

// parseRole accepts a role name, case-insensitive.
func parseRole(s string) (protocol.Role, error) {
	switch strings.ToUpper(s) {
	case "ICM":
		return protocol.RoleICM, nil
	case "PMS":
		return protocol.RolePMS, nil
	case "REL":
		return protocol.RoleREL, nil
	case "REMU":
		return protocol.RoleREMU, nil
	case "SEMU":
		return protocol.RoleSEMU, nil
	case "SENS":
		return protocol.RoleSENS, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

func parseUint8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}
