// Copyright 2020 DataStax
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command cqlnode starts one node of the cluster: start_node(id, mode).
// The node registry, user credentials and TLS material are read from files
// whose paths are flags; -seed and -bootstrap select how the node joins, and
// -verbose enables debug logging.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ringkeeper/cqlstore/internal/auth"
	"github.com/ringkeeper/cqlstore/internal/clusterstate"
	"github.com/ringkeeper/cqlstore/internal/coordinator"
	"github.com/ringkeeper/cqlstore/internal/membership"
	"github.com/ringkeeper/cqlstore/internal/node"
	"github.com/ringkeeper/cqlstore/internal/registry"
	"github.com/ringkeeper/cqlstore/internal/storage"
)

func main() {
	var (
		id        = flag.Uint("id", 0, "this node's id, as it appears in node_ips.csv")
		modeFlag  = flag.String("mode", "parsing", "connection mode: parsing or echo")
		ipsPath   = flag.String("node-ips", "node_ips.csv", "CSV file mapping node id to IP address")
		usersPath = flag.String("users", "users.csv", "CSV file mapping username to password")
		certPath  = flag.String("cert", "", "TLS certificate file (cert.pem); empty disables TLS")
		keyPath   = flag.String("key", "", "TLS private key file (custom.key); empty disables TLS")
		seedFlag  = flag.Uint("seed", 0, "id of the seed node to join through; ignored if this node is a seed")
		bootstrap = flag.Bool("bootstrap", false, "join the cluster through -seed instead of starting as already-normal")
		verbose   = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := run(nodeConfig{
		id:        clusterstate.NodeId(*id),
		mode:      *modeFlag,
		ipsPath:   *ipsPath,
		usersPath: *usersPath,
		certPath:  *certPath,
		keyPath:   *keyPath,
		seed:      clusterstate.NodeId(*seedFlag),
		bootstrap: *bootstrap,
	}); err != nil {
		log.Fatal().Err(err).Msg("cqlnode: fatal")
	}
}

type nodeConfig struct {
	id        clusterstate.NodeId
	mode      string
	ipsPath   string
	usersPath string
	certPath  string
	keyPath   string
	seed      clusterstate.NodeId
	bootstrap bool
}

func run(cfg nodeConfig) error {
	mode, err := parseMode(cfg.mode)
	if err != nil {
		return err
	}
	reg, err := registry.LoadCSV(cfg.ipsPath)
	if err != nil {
		return fmt.Errorf("load node registry: %w", err)
	}
	credentials, err := auth.LoadCSV(cfg.usersPath)
	if err != nil {
		return fmt.Errorf("load user credentials: %w", err)
	}
	tlsConfig, err := loadTLSConfig(cfg.certPath, cfg.keyPath)
	if err != nil {
		return fmt.Errorf("load TLS material: %w", err)
	}

	localAddr, err := reg.Address(cfg.id)
	if err != nil {
		return fmt.Errorf("resolve local address: %w", err)
	}
	engine := storage.NewEngine(cfg.id)
	localState := clusterstate.NewEndpointState(localAddr, mode)
	view := membership.NewView(cfg.id, localState, reg.NodeIds())

	// Node itself is the coordinator.Transport and membership.Transport
	// implementation, so it has to exist before either is built; its
	// Coordinator and Manager fields are filled in right after.
	n := node.New(cfg.id, mode, reg, engine, nil, view, nil, credentials, tlsConfig)
	n.Coordinator = coordinator.New(cfg.id, reg, engine, n)
	n.Manager = membership.NewManager(view, n, engine)
	manager := n.Manager

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node %v: %w", cfg.id, err)
	}

	if cfg.bootstrap {
		localState.AppState = clusterstate.AppStatusNewNode
		if err := manager.Join(ctx, cfg.seed); err != nil {
			log.Error().Err(err).Msgf("node %v: bootstrap through seed %v failed", cfg.id, cfg.seed)
		}
	} else {
		manager.CompleteBootstrap()
	}

	waitForSignal()
	return n.Exit()
}

func parseMode(s string) (clusterstate.ConnectionMode, error) {
	switch s {
	case "parsing":
		return clusterstate.ModeParsing, nil
	case "echo":
		return clusterstate.ModeEcho, nil
	default:
		return 0, fmt.Errorf("unknown mode %q, want parsing or echo", s)
	}
}

func loadTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	if certPath == "" && keyPath == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
