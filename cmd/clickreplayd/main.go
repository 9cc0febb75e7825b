package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"clickreplay/internal/api"
	"clickreplay/internal/config"
	"clickreplay/internal/core"
	"clickreplay/internal/input"
	"clickreplay/internal/logging"
	clickreplaymcp "clickreplay/internal/mcp"
	"clickreplay/internal/notify"
	"clickreplay/internal/playback"
	"clickreplay/internal/recorder"
	"clickreplay/internal/screenshot"
	"clickreplay/internal/service"
	"clickreplay/internal/store"
	"clickreplay/internal/uitree"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	// stdout belongs to the MCP protocol when it is served over stdio.
	logOut := os.Stdout
	if cfg.Mode != "http" {
		logOut = os.Stderr
	}
	logger := logging.NewWithWriter(logOut, cfg.LogLevel, cfg.Log.Format)

	if err := run(cfg, logger); err != nil {
		logger.Error("clickreplayd exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storeInst, err := store.Open(ctx, cfg.StateDir, cfg.Log.SessionKeep)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer storeInst.Close()

	location := time.Local
	if cfg.UseUTC {
		location = time.UTC
	}

	be, err := buildBackend(cfg, logger)
	if err != nil {
		return err
	}
	resolver := playback.NewResolver(be.desktop, cfg.Playback.ElementTimeout, cfg.Playback.ElementPoll, logger)
	executor := playback.NewExecutor(be.desktop, resolver, be.injector, logger, nil)
	engine := playback.NewEngine(executor, be.capturer, cfg.Playback.MaxStepDelay, logger)

	scheduler := core.NewScheduler(storeInst, engine, logger, core.SchedulerOptions{
		Location: location,
		Warmup:   cfg.Scheduler.Warmup,
		Interval: cfg.Scheduler.Interval,
	})
	jobNotifier := notify.NewJobNotifier(buildNotifier(cfg, logger), logger)
	scheduler.AddListener(jobNotifier)

	svc := service.New(ctx, storeInst, engine, scheduler, logger, service.Options{Inspector: be.inspector})
	if cfg.Scheduler.AutoStart {
		svc.StartScheduler()
	}

	mcpServer := clickreplaymcp.NewMCPServer(svc, logger)
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Mode == "mcp" || cfg.Mode == "both" {
		g.Go(func() error {
			// the daemon ends with the stdio session
			defer stop()
			return mcpServer.Run()
		})
	}
	if cfg.Mode == "http" || cfg.Mode == "both" {
		server := api.NewServer(cfg.Addr, cfg.AuthToken, svc, mcpServer.HTTPHandler(), logger)
		g.Go(func() error {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()
	logger.Info("shutting down")

	engine.Stop()
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownGrace):
		logger.Warn("scheduler stop timed out")
	}
	svc.Wait()
	jobNotifier.Wait()
	logger.Info("shutdown complete")
	return runErr
}

type backend struct {
	desktop   uitree.Desktop
	injector  input.Injector
	capturer  screenshot.Capturer
	inspector recorder.Inspector
}

// buildBackend selects the UI tree, input injector and screenshot source.
// A desktop fixture, when configured, backs element lookup on either backend.
func buildBackend(cfg *config.Config, logger *slog.Logger) (backend, error) {
	var be backend
	var mem *uitree.MemDesktop
	if cfg.Playback.DesktopFixture != "" {
		f, err := os.Open(cfg.Playback.DesktopFixture)
		if err != nil {
			return be, fmt.Errorf("open desktop fixture: %w", err)
		}
		defer f.Close()
		if mem, err = uitree.LoadMemDesktop(f); err != nil {
			return be, fmt.Errorf("load desktop fixture: %w", err)
		}
	}

	switch cfg.Playback.Backend {
	case config.BackendRobotgo:
		injector, err := input.NewRobot()
		if err != nil {
			return be, err
		}
		be.injector = injector
		be.capturer = screenshot.NewDisk(cfg.Playback.ScreenshotDir, nil)
		be.desktop = uitree.Unsupported{}
		if mem != nil {
			be.desktop, be.inspector = mem, mem
		}
	default:
		if mem == nil {
			mem = uitree.NewMemDesktop()
		}
		be.injector = input.NewJournal(logger)
		be.desktop, be.inspector = mem, mem
	}
	logger.Info("playback backend ready", "backend", cfg.Playback.Backend,
		"fixture", cfg.Playback.DesktopFixture, "native_input", input.Available)
	return be, nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	bark := cfg.Notification.Bark
	if !bark.Enabled || bark.URL == "" {
		return &notify.NoOpNotifier{}
	}
	n, err := notify.NewBarkNotifier(bark.URL)
	if err != nil {
		logger.Warn("bark notifier disabled", "err", err)
		return &notify.NoOpNotifier{}
	}
	return notify.NewMultiNotifier(n)
}
