package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/conflux/conflux/pkg/changenotify"
	"github.com/conflux/conflux/pkg/confluxconfig"
	"github.com/conflux/conflux/pkg/limiter"
	"github.com/conflux/conflux/pkg/log"
	"github.com/conflux/conflux/pkg/metrics"
	"github.com/conflux/conflux/pkg/policy"
	"github.com/conflux/conflux/pkg/raftnode"
	"github.com/conflux/conflux/pkg/readpath"
	"github.com/conflux/conflux/pkg/storage"
	"github.com/conflux/conflux/pkg/validate"
)

const defaultMetricsAddr = "127.0.0.1:9090"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start this node: open its stores, join or bootstrap consensus, and serve metrics/health endpoints",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a node-bootstrap YAML file (required)")
	serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := confluxconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	logger := log.WithNodeID(fmt.Sprintf("%d", cfg.NodeID))

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	limits := limiter.DefaultLimits()
	if cfg.Limiter.MaxRequestsPerSecond > 0 {
		limits.MaxRequestsPerSecond = uint32(cfg.Limiter.MaxRequestsPerSecond)
	}
	if cfg.Limiter.MaxRequestBytes > 0 {
		limits.MaxRequestSize = cfg.Limiter.MaxRequestBytes
	}
	if cfg.Limiter.MaxInFlightBytes > 0 {
		limits.MaxMemoryUsage = cfg.Limiter.MaxInFlightBytes
	}
	if cfg.Limiter.MaxConcurrent > 0 {
		limits.MaxConcurrentRequests = cfg.Limiter.MaxConcurrent
	}
	lim := limiter.New(limits)

	val := validate.New(validate.DefaultOptions())

	broker := changenotify.NewBroker()
	broker.Start()
	defer broker.Stop()

	collector := metrics.NewCollector(cfg.NodeID)
	metrics.SetVersion(Version)

	node, err := raftnode.New(raftnode.Config{
		NodeID:       cfg.NodeID,
		BindAddr:     cfg.BindAddr,
		DataDir:      cfg.DataDir,
		Heartbeat:    cfg.Timeouts.Heartbeat,
		ElectionMin:  cfg.Timeouts.ElectionMin,
		ElectionMax:  cfg.Timeouts.ElectionMax,
		CommitPeriod: cfg.Timeouts.CommitPeriod,
	}, store, lim, val, policy.AllowAll{}, broker, collector)
	if err != nil {
		return fmt.Errorf("construct raft node: %w", err)
	}

	if cfg.Bootstrap {
		if err := node.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap cluster: %w", err)
		}
		logger.Info().Msg("bootstrapped single-member cluster")
	} else {
		if err := node.Start(); err != nil {
			return fmt.Errorf("start raft: %w", err)
		}
		logger.Info().Msg("started, awaiting admission by an existing cluster member")
		if cfg.JoinAddr != "" {
			logger.Info().Str("join_addr", cfg.JoinAddr).Msg("configured join address must admit this node by calling AddNode against its own leader; confluxd does not dial peers itself")
		}
	}
	metrics.RegisterComponent("raft", true, "started")
	metrics.RegisterComponent("store", true, "ready")

	if cfg.Bootstrap && len(cfg.Peers) > 0 {
		go admitConfiguredPeers(node, cfg.Peers, logger)
	}

	reader, err := readpath.New(store, node, broker, 0)
	if err != nil {
		return fmt.Errorf("construct read path: %w", err)
	}
	defer reader.Close()

	metricsAddr := cfg.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = defaultMetricsAddr
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	server := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server exited")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics and health endpoints listening")

	stopMetrics := reportMetricsPeriodically(node)
	defer close(stopMetrics)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)

	if err := node.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("raft shutdown error")
	}
	return store.Close()
}

// admitConfiguredPeers waits for this node to become leader, then admits
// every peer named in the bootstrap file's peers list. It is a best-effort
// convenience for standing up a fixed-size cluster from static
// configuration; it is not a substitute for AddNode as an ongoing
// operational primitive.
func admitConfiguredPeers(node *raftnode.Node, peers []confluxconfig.PeerConfig, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := node.WaitForLeadership(ctx); err != nil {
		logger.Warn().Err(err).Msg("did not become leader in time to admit configured peers")
		return
	}
	for _, p := range peers {
		if err := node.AddNode(nil, p.NodeID, p.Address); err != nil {
			logger.Error().Err(err).Uint64("node_id", p.NodeID).Msg("failed to admit configured peer")
			continue
		}
		logger.Info().Uint64("node_id", p.NodeID).Str("address", p.Address).Msg("admitted configured peer")
	}
}

func reportMetricsPeriodically(node *raftnode.Node) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				node.ReportMetrics()
			case <-stop:
				return
			}
		}
	}()
	return stop
}
