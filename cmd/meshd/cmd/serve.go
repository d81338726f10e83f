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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/easydriveway/meshcore/config"
	"github.com/easydriveway/meshcore/engine"
	"github.com/easydriveway/meshcore/internal/metrics"
	"github.com/easydriveway/meshcore/peerdb"
	"github.com/easydriveway/meshcore/providers"
)

var (
	serveCfgPath  string
	serveMAC      string
	serveToken    string
	serveRole     string
	serveMetrics  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mesh node engine",
	RunE: func(c *cobra.Command, args []string) error {
		ConfigureVerbosity()
		return runServe()
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveCfgPath, "config", "", "path to a YAML config overriding the default tunables")
	serveCmd.Flags().StringVar(&serveMAC, "mac", "", "this node's own MAC address (required)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "this node's own device token, 32 hex chars (required)")
	serveCmd.Flags().StringVar(&serveRole, "role", "", "this node's fixed role: ICM, PMS, REL, REMU, SEMU, or SENS (required)")
	serveCmd.Flags().StringVar(&serveMetrics, "metrics-addr", "", "override the config's metrics listen address, e.g. :9090")
}

func runServe() error {
	if serveMAC == "" || serveToken == "" || serveRole == "" {
		return fmt.Errorf("serve: --mac, --token, and --role are all required")
	}
	mac, err := parseMAC(serveMAC)
	if err != nil {
		return err
	}
	tok, err := parseToken(serveToken)
	if err != nil {
		return err
	}
	role, err := parseRole(serveRole)
	if err != nil {
		return err
	}

	cfg := config.New()
	if serveCfgPath != "" {
		cfg, err = config.ReadFile(serveCfgPath)
		if err != nil {
			return err
		}
	}
	if serveMetrics != "" {
		cfg.MetricsAddr = serveMetrics
	}

	kv, err := providers.OpenFileKV(statePath)
	if err != nil {
		return fmt.Errorf("opening state at %s: %w", statePath, err)
	}
	radio := providers.NullRadio{}
	peers := peerdb.New(kv, radio)
	if err := peers.Load(); err != nil {
		return fmt.Errorf("loading peer directory: %w", err)
	}

	clock := providers.NewRealClock()
	deps := engine.Deps{
		PMSTelemetry:  &providers.MemPMSTelemetry{},
		Cooling:       &providers.MemCooling{},
		Relay:         providers.NewMemRelay(8),
		SENSTelemetry: providers.NewMemSENSTelemetry(),
	}

	e, err := engine.New(cfg, peers, radio, clock, mac, tok, role, deps)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		collector := metrics.New()
		e.Stack.Metrics = collector
		go func() {
			if err := collector.Serve(cfg.MetricsAddr); err != nil {
				log.WithError(err).Error("serve: metrics listener stopped")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigStop := make(chan os.Signal, 1)
	signal.Notify(sigStop, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	go func() {
		<-sigStop
		log.Warning("serve: graceful shutdown")
		cancel()
	}()

	log.WithField("role", role).WithField("mac", mac).Info("serve: engine starting")
	if err := e.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
