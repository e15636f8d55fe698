// Command xskdemo binds an xsk socket to a loopback device and drives
// its RX/TX engines, serving Prometheus metrics and structured logs
// while it runs.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"xskd/internal/config"
	"xskd/internal/logging"
	"xskd/internal/metrics"
	"xskd/internal/xsk"
)

var (
	version   = "v0.1.0"
	buildTime = "unknown"
	gitHash   = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "xskdemo",
		Short:   "xsk socket family demo: binds a socket and drives its data path",
		Version: fmt.Sprintf("%s (built: %s, commit: %s)", version, buildTime, gitHash),
		Run:     run,
	}

	rootCmd.Flags().StringP("config", "c", "", "Configuration file path")
	rootCmd.Flags().String("interface", "lo", "Interface name to bind")
	rootCmd.Flags().Uint32("queue-id", 0, "Queue id to bind")
	rootCmd.Flags().StringP("log-level", "l", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("enable-metrics", true, "Enable Prometheus metrics")
	rootCmd.Flags().IntP("admin-port", "a", 9090, "Admin/metrics port")
	rootCmd.Flags().Bool("zero-copy", false, "Request zero-copy mode")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) {
	cfg, err := config.Load(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting xskdemo",
		"version", version,
		"interface", cfg.Interface,
		"queue_id", cfg.QueueID,
		"admin_port", cfg.AdminPort,
	)

	mcfg := metrics.DefaultMetricsConfig()
	mc := metrics.NewMetricsCollector(mcfg)
	if cfg.EnableMetrics {
		// StartServer blocks while serving, so it runs on its own goroutine.
		go func() {
			if err := mc.StartServer(cfg.GetAdminAddress()); err != nil && err != http.ErrServerClosed {
				logger.LogFatal("metrics", err.Error())
				os.Exit(1)
			}
		}()
		logger.Info("metrics server started", "addr", cfg.GetAdminAddress())
	}

	umem, err := xsk.NewUmem(cfg.Umem.FrameSize, cfg.Umem.FrameCount, cfg.Umem.Headroom, cfg.Umem.FillRingLen, cfg.Umem.CompRingLen)
	if err != nil {
		logger.LogFatal("umem", err.Error())
		os.Exit(1)
	}

	hooks := xsk.NewHookTable()
	socket, err := xsk.NewSocket(umem, hooks, cfg.Ring.RxRingLen, cfg.Ring.TxRingLen,
		xsk.WithZeroCopy(cfg.ZeroCopy),
		xsk.WithNeedWakeup(cfg.NeedWakeup),
		xsk.WithDrainOnRebind(cfg.DrainOnRebind),
		xsk.WithTxBatch(cfg.TxBatch),
	)
	if err != nil {
		logger.LogFatal("socket", err.Error())
		os.Exit(1)
	}

	device := xsk.NewLoopbackDevice(cfg.Interface, 1500, int(cfg.Ring.RxRingLen))
	if err := socket.Bind(device, cfg.Interface, cfg.QueueID); err != nil {
		logger.LogFatal("bind", err.Error())
		os.Exit(1)
	}
	logger.LogBind(0, cfg.QueueID, false)
	mc.GetPrometheus().SetSocketBound(cfg.Interface, fmt.Sprintf("%d", cfg.QueueID), true)

	// Pre-fill the fill ring so the loopback device has frames to land
	// inbound traffic on.
	for i := uint32(0); i < cfg.Umem.FillRingLen && i < cfg.Umem.FrameCount; i++ {
		umem.FillRing().ProduceOne(i)
	}
	// Prime the completion ring so Send has frames to write into.
	for i := cfg.Umem.FrameCount / 2; i < cfg.Umem.FrameCount && umem.CompRing().Reserve(1); i++ {
		umem.CompRing().ProduceOne(i)
	}

	rx := xsk.NewRxEngine(socket, func(frame []byte) {
		mc.GetPrometheus().RecordRxPacket(cfg.Interface, fmt.Sprintf("%d", cfg.QueueID), len(frame))
	})
	tx := xsk.NewTxEngine(socket)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(3)
	go ingestLoop(ctx, &wg, device, hooks, cfg, logger)
	go workerLoop(ctx, &wg, rx, tx, cfg, logger)
	go statsCollector(ctx, &wg, socket, mc, cfg, logger)

	<-sigCh
	logger.Info("shutdown signal received")
	cancel()
	wg.Wait()

	if cfg.EnableMetrics {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		mc.StopServer(stopCtx)
	}
	socket.Release()
	device.Close()
	logger.Info("xskdemo stopped")
}

// ingestLoop drains frames looped back by the device and hands each one
// to the hook dispatch table, simulating what a real XDP program would
// do when steering a frame to a bound socket's queue.
func ingestLoop(ctx context.Context, wg *sync.WaitGroup, device *xsk.LoopbackDevice, hooks *xsk.HookTable, cfg *config.Config, logger *logging.Logger) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frame, ok := device.Receive()
		if !ok {
			return
		}
		if err := hooks.Dispatch(cfg.Interface, cfg.QueueID, frame); err != nil {
			logger.LogDrop(err.Error(), 0, cfg.QueueID)
		}
	}
}

// workerLoop follows the teacher's worker-loop shape: a ticker drives
// periodic RX/TX polling instead of a tight busy-spin, since this demo
// has no real NIC interrupt to wait on.
func workerLoop(ctx context.Context, wg *sync.WaitGroup, rx *xsk.RxEngine, tx *xsk.TxEngine, cfg *config.Config, logger *logging.Logger) {
	defer wg.Done()
	ticker := time.NewTicker(cfg.PollTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rx.Poll(uint32(cfg.Ring.RxRingLen))
			if _, err := tx.Flush(); err != nil {
				logger.Debug("tx flush", "error", err.Error())
			}
		}
	}
}

// statsCollector mirrors the teacher's AFXDPManager.statsCollector
// pattern: a one-second ticker snapshots socket counters into the
// Prometheus gauges rather than updating them inline on every packet.
func statsCollector(ctx context.Context, wg *sync.WaitGroup, socket *xsk.Socket, mc *metrics.MetricsCollector, cfg *config.Config, logger *logging.Logger) {
	defer wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	ifindexLabel := cfg.Interface
	queueLabel := fmt.Sprintf("%d", cfg.QueueID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := socket.GetStats()
			p := mc.GetPrometheus()
			p.SetRingDepth("rx", ifindexLabel, queueLabel, int(socket.RxRing().Depth()))
			p.SetRingDepth("tx", ifindexLabel, queueLabel, int(socket.TxRing().Depth()))
			p.SetUmemFramesFree("default", int(socket.Umem().NumFrames())-int(socket.Umem().FillRing().Depth()))
			logger.Debug("stats snapshot",
				"rx_packets", stats.RxPackets,
				"rx_dropped", stats.RxDropped,
				"tx_packets", stats.TxPackets,
			)
		}
	}
}
