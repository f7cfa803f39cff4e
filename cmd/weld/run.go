package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weld-ui/weld/internal/config"
	"github.com/weld-ui/weld/pkg/engine"
	"github.com/weld-ui/weld/pkg/inspect"
	"github.com/weld-ui/weld/pkg/receiver"
	"github.com/weld-ui/weld/pkg/registry"
	"github.com/weld-ui/weld/pkg/telemetry"
)

func runCmd() *cobra.Command {
	var (
		configPath  string
		bundle      string
		provider    string
		timeout     time.Duration
		inspectAddr string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "run [bundle]",
		Short: "Host a guest bundle against a logging receiver",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				bundle = args[0]
			}
			if bundle == "" {
				bundle = cfg.Bundle
			}
			if bundle == "" {
				return fmt.Errorf("no bundle: pass one as an argument or set bundle in %s", configPath)
			}
			if provider != "" {
				cfg.Engine.Provider = provider
			}
			if timeout > 0 {
				cfg.Engine.LoadTimeout = config.Duration(timeout)
			}
			if inspectAddr != "" {
				cfg.Inspect.Addr = inspectAddr
			}
			if debug {
				cfg.Engine.Debug = true
			}
			return run(cmd.Context(), cfg, bundle)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.ConfigFileName, "configuration file")
	cmd.Flags().StringVar(&bundle, "bundle", "", "bundle source (file or URL; s3:// URIs fail: no object fetcher is configured)")
	cmd.Flags().StringVar(&provider, "provider", "", "sandbox provider (goja, vm, worker, hostrealm)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "bundle load timeout")
	cmd.Flags().StringVar(&inspectAddr, "inspect", "", "diagnostics listen address (e.g. :8090)")
	cmd.Flags().BoolVar(&debug, "debug", false, "forward guest console output")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, bundle string) error {
	level := slog.LevelInfo
	if cfg.Engine.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	modules, err := loadModules(cfg.Modules)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Config{
		Provider:      cfg.Engine.Provider,
		LoadTimeout:   cfg.Engine.LoadTimeout.Std(),
		ScriptTimeout: cfg.Engine.ScriptTimeout.Std(),
		Debug:         cfg.Engine.Debug,
		MaxBatchSize:  cfg.Engine.MaxBatchSize,
		GuestConfig:   cfg.GuestConfig,
		Modules:       modules,
		Logger:        logger,
	})
	defer eng.Destroy()

	components := make(map[string]registry.Component, len(cfg.Components))
	for _, name := range cfg.Components {
		components[name] = name
	}
	eng.Register(components)

	var recv *receiver.Receiver
	recv = eng.CreateReceiver(func() { logRender(logger, recv) })

	obs := telemetry.NewObserver()
	defer obs.Observe(eng)()

	unsubscribe := eng.On(engine.EventFatalError, func(payload any) {
		logger.Error("fatal guest error", "error", payload)
	})
	defer unsubscribe()

	if cfg.Inspect.Addr != "" {
		srv := inspect.NewServer(logger)
		defer srv.Attach(eng)()
		go func() {
			logger.Info("inspect server listening", "addr", cfg.Inspect.Addr)
			if err := http.ListenAndServe(cfg.Inspect.Addr, srv.Router()); err != nil {
				logger.Error("inspect server failed", "error", err)
			}
		}()
	}

	source := bundle
	if !strings.HasPrefix(bundle, "http://") && !strings.HasPrefix(bundle, "https://") &&
		!strings.HasPrefix(bundle, "s3://") {
		data, err := os.ReadFile(bundle)
		if err != nil {
			return fmt.Errorf("read bundle: %w", err)
		}
		source = string(data)
	}

	logger.Info("loading bundle", "engine", eng.ID(), "bundle", bundle)
	if err := eng.LoadBundle(ctx, source, nil); err != nil {
		return err
	}
	logger.Info("bundle loaded", "engine", eng.ID())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")
	return nil
}

// loadModules reads require() whitelist sources from disk.
func loadModules(paths map[string]string) (map[string]string, error) {
	modules := make(map[string]string, len(paths))
	for name, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", name, err)
		}
		modules[name] = string(data)
	}
	return modules, nil
}

// logRender prints the rendered tree outline after each coalesced
// update.
func logRender(logger *slog.Logger, recv *receiver.Receiver) {
	out := recv.Render()
	if out == nil {
		logger.Info("render", "tree", "<empty>")
		return
	}
	var b strings.Builder
	outline(&b, out, 0)
	logger.Info("render", "nodes", recv.NodeCount(), "tree", "\n"+b.String())
}

func outline(b *strings.Builder, node any, depth int) {
	indent := strings.Repeat("  ", depth)
	switch t := node.(type) {
	case string:
		fmt.Fprintf(b, "%s%q\n", indent, t)
	case *receiver.Renderable:
		fmt.Fprintf(b, "%s<%s id=%d>\n", indent, t.Type, t.NodeID)
		for _, child := range t.Children {
			outline(b, child, depth+1)
		}
	}
}
