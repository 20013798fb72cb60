package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Fantom-foundation/libtransport/pkg/config"
	"github.com/Fantom-foundation/libtransport/pkg/gossip"
	"github.com/Fantom-foundation/libtransport/pkg/netstack"
	"github.com/Fantom-foundation/libtransport/pkg/observability"
	"github.com/Fantom-foundation/libtransport/pkg/peers"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("libtransport-node started", zap.String("app", cfg.AppName))
	zap.L().Info("effective configuration", zap.Any("config", cfg))

	// Seed the peer directory from config, then merge the peers file if set.
	roster := peers.New[gossip.PeerID](peers.Options{})
	for _, p := range cfg.Peers {
		roster.Add(gossip.PeerID(p.ID), p.Address)
	}
	if cfg.PeersFile != "" {
		parse := func(s string) (gossip.PeerID, error) { return gossip.PeerID(s), nil }
		if err := roster.LoadFile(cfg.PeersFile, parse); err != nil {
			zap.L().Error("failed to load peers file", zap.Error(err))
			return 1
		}
	}

	// An invalid transport kind or codec aborts startup here.
	recv, err := netstack.NewReceiver[gossip.Message](cfg.Transport)
	if err != nil {
		zap.L().Error("failed to start receiver", zap.Error(err))
		return 1
	}
	defer func() { _ = recv.Close() }()
	sender, err := netstack.NewSender[gossip.Message](cfg.Transport)
	if err != nil {
		zap.L().Error("failed to start sender", zap.Error(err))
		return 1
	}
	defer func() { _ = sender.Close() }()
	zap.L().Info("transport ready",
		zap.String("kind", cfg.Transport.Kind), zap.String("bind", recv.Addr().String()))

	engine := gossip.NewEngine(gossip.Config{
		NodeID:   gossip.PeerID(cfg.NodeID),
		Sender:   sender,
		Receiver: recv,
		Roster:   roster,
		Interval: time.Duration(cfg.Sync.IntervalMS) * time.Millisecond,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(ctx); err != nil {
		zap.L().Error("engine stopped", zap.Error(err))
		return 1
	}
	req, rep := engine.Stats()
	zap.L().Info("node shut down",
		zap.Uint64("sync_requests", req), zap.Uint64("sync_replies", rep))
	return 0
}
