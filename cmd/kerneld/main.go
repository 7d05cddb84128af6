package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/asynclear-go/asynclear/internal/clock"
	"github.com/asynclear-go/asynclear/internal/executor"
	"github.com/asynclear-go/asynclear/internal/fs"
	"github.com/asynclear-go/asynclear/internal/fs/fat32"
	"github.com/asynclear-go/asynclear/internal/fs/inode"
	"github.com/asynclear-go/asynclear/internal/logger"
	"github.com/asynclear-go/asynclear/internal/memory"
	"github.com/asynclear-go/asynclear/internal/metrics"
	"github.com/asynclear-go/asynclear/internal/syscall"
)

var (
	devicePath string
	logLevel   string
	logFile    string
	metricAddr string
)

var rootCmd = &cobra.Command{
	Use:   "kerneld",
	Short: "Mount a FAT32-backed root filesystem and run the task executor",
	Long: `kerneld boots the single-hart cooperative executor against a root
filesystem read off a block device. It mounts the device's FAT32 volume,
builds the dentry tree over it, wires the syscall dispatch surface to the
mounted VFS, and drives the executor run loop until asked to shut down.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&devicePath, "device", "/dev/mmcblk0", "path to the backing block device or disk image")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log verbosity (trace, debug, info, warn, error)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "log output file; empty logs to stderr")
	rootCmd.Flags().StringVar(&metricAddr, "metrics-addr", "", "address to serve Prometheus syscall metrics on (e.g. :9090); empty disables metrics")
}

func run(cmd *cobra.Command, args []string) error {
	level := logger.ParseLevel(logLevel)
	if logFile != "" {
		logger.SetDefault(logger.NewRotating(level, logFile, 64, 5))
	} else {
		logger.SetDefault(logger.New(level, os.Stderr, nil))
	}

	root, err := mountRoot(cmd.Context(), devicePath)
	if err != nil {
		return fmt.Errorf("kerneld: mount %s: %w", devicePath, err)
	}

	vfs := fs.NewVirtFileSystem(root, devicePath)
	space := newBootAddressSpace(bootArenaSize)
	dispatcher := syscall.NewDispatcher(vfs, clock.RealClock{}, space)

	metricsShutdown, err := startMetrics(metricAddr, dispatcher)
	if err != nil {
		return fmt.Errorf("kerneld: metrics: %w", err)
	}
	defer metricsShutdown(context.Background())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, unix.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutdown requested")
		executor.RequestShutdown()
	}()

	proc := newInitProcess(vfs.Root())
	executor.Spawn[struct{}](&bootTask{dispatcher: dispatcher, proc: proc, space: space})

	executor.RunUntilShutdown()
	return nil
}

// startMetrics, when addr is non-empty, wires the Prometheus-backed OTel
// MeterProvider, hands the dispatcher a live instrument set, and serves the
// scrape endpoint over HTTP. With no addr it does none of this, and the
// dispatcher keeps the harmless no-op handle it starts with.
func startMetrics(addr string, d *syscall.Dispatcher) (metrics.ShutdownFunc, error) {
	if addr == "" {
		return func(context.Context) error { return nil }, nil
	}

	handler, shutdown, err := metrics.NewPrometheusExporter()
	if err != nil {
		return nil, err
	}
	h, err := metrics.NewOTelMetrics()
	if err != nil {
		return nil, err
	}
	d.SetMetrics(h)

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server: %v", err)
		}
	}()
	logger.Info("metrics: serving Prometheus scrape endpoint on %s/metrics", addr)

	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return err
		}
		return shutdown(ctx)
	}, nil
}

// mountRoot opens the block device at path, parses its FAT32 boot sector,
// loads the allocation table, and wraps the root directory cluster in the
// dentry tree the VFS walks paths over.
func mountRoot(ctx context.Context, path string) (*fs.DEntryDir, error) {
	device, err := memory.OpenFileBlockDevice(path)
	if err != nil {
		return nil, err
	}

	layout, err := fat32.ReadLayout(ctx, device)
	if err != nil {
		return nil, err
	}

	table, err := fat32.Load(ctx, device, layout)
	if err != nil {
		return nil, err
	}

	now := clock.RealClock{}
	backend := fat32.NewFat32Dir(table, layout.RootCluster, now)
	rootInode := inode.NewDir("/", backend, now)
	return fs.NewRootDEntryDir(rootInode), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
