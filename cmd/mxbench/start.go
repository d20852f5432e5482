package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/khryptorgraphics/mxtasking/internal/admin"
	"github.com/khryptorgraphics/mxtasking/internal/config"
	"github.com/khryptorgraphics/mxtasking/internal/logging"
	"github.com/khryptorgraphics/mxtasking/internal/metrics"
	"github.com/khryptorgraphics/mxtasking/pkg/tasking"
)

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Boot a runtime and its admin/metrics endpoints",
		Long:  "Start a standalone mxtasking runtime along with its admin introspection and Prometheus metrics endpoints, and block until interrupted.",
		RunE:  runStart,
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: logging.Format(cfg.Logging.Format),
	})

	rt := tasking.New(cfg.Runtime.TaskingConfig(logger), nil)
	if err := rt.Start(); err != nil {
		return err
	}
	defer func() {
		rt.Stop()
		_ = rt.Release()
	}()

	fmt.Fprintln(os.Stdout, color.GreenString("mxtasking runtime started with %d workers", rt.WorkerCount()))

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(metrics.Config{Listen: cfg.Metrics.Listen, Path: cfg.Metrics.Path}, rt, logger)
		metricsSrv.Start()
		fmt.Fprintln(os.Stdout, color.CyanString("metrics listening on %s%s", cfg.Metrics.Listen, cfg.Metrics.Path))
	}

	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		adminSrv = admin.NewServer(admin.Config{Listen: cfg.Admin.Listen}, rt, logger)
		adminSrv.Start()
		fmt.Fprintln(os.Stdout, color.CyanString("admin surface listening on %s", cfg.Admin.Listen))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(os.Stdout, color.YellowString("shutting down..."))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Runtime.ShutdownGracePeriod)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(ctx)
	}
	if adminSrv != nil {
		_ = adminSrv.Shutdown(ctx)
	}
	return nil
}
