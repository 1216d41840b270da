// pownoded runs a full proof-of-work, account-model node: it opens the
// chain store, accepts peer connections, relays transactions through the
// mempool, and optionally mines new blocks, following the same
// config/logger/signal-handling shape as the teacher daemon's kaspad.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opensyria/pownode/chainstore"
	"github.com/opensyria/pownode/config"
	"github.com/opensyria/pownode/logger"
	"github.com/opensyria/pownode/mempool"
	"github.com/opensyria/pownode/miner"
	"github.com/opensyria/pownode/peerprotocol"
	"github.com/opensyria/pownode/transport"
	"github.com/opensyria/pownode/wireformat"
)

var log, _ = logger.Get(logger.SubsystemTags.NODE)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pownoded: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.InitLogRotators(cfg.LogFile(), cfg.ErrLogFile())
	if err := logger.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return err
	}

	log.Infof("starting pownoded on network %q (chain id %d)", cfg.Params.Name, cfg.Params.ChainID)

	store, err := chainstore.Open(cfg.DataDir(), cfg.Params)
	if err != nil {
		return err
	}
	defer store.Close()

	pool := mempool.New(mempool.DefaultConfig, cfg.Params, store)

	srv := transport.NewServer(nil)
	handler := peerprotocol.NewHandler(cfg.Params, cfg.NetworkID, store, pool, srv)
	srv.SetDispatcher(func(peerID string, raw []byte) (peerprotocol.Message, error) {
		return handler.HandleRaw(peerID, raw)
	})

	if err := srv.Listen(cfg.Listen); err != nil {
		return err
	}
	defer srv.Close()
	go func() {
		if err := srv.Serve(); err != nil {
			log.Warnf("peer server stopped: %s", err)
		}
	}()
	log.Infof("listening for peers on %s", cfg.Listen)

	for _, addr := range cfg.ConnectPeers {
		if err := srv.Dial(addr); err != nil {
			log.Warnf("failed to connect to %s: %s", addr, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if addr, ok, err := cfg.MiningKeyAddress(); err != nil {
		return err
	} else if ok {
		onMined := func(block *wireformat.Block) {
			srv.Broadcast(&peerprotocol.NewBlock{Block: block}, "")
		}
		m := miner.New(cfg.Params, store, pool, addr, onMined)
		go func() {
			if err := m.Run(ctx); err != nil && err != context.Canceled {
				log.Warnf("miner stopped: %s", err)
			}
		}()
		log.Infof("mining enabled, paying subsidies to %s", cfg.MiningAddress)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Infof("shutting down")
	cancel()
	return nil
}
