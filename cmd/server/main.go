package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/tempvoice/internal/adapters/http"
	"github.com/dkeye/tempvoice/internal/adapters/rtc"
	signaling "github.com/dkeye/tempvoice/internal/adapters/signal"
	"github.com/dkeye/tempvoice/internal/app"
	"github.com/dkeye/tempvoice/internal/app/commands"
	"github.com/dkeye/tempvoice/internal/app/events"
	"github.com/dkeye/tempvoice/internal/app/orch"
	"github.com/dkeye/tempvoice/internal/app/proposals"
	"github.com/dkeye/tempvoice/internal/app/rooms"
	"github.com/dkeye/tempvoice/internal/app/sfu"
	"github.com/dkeye/tempvoice/internal/clock"
	"github.com/dkeye/tempvoice/internal/config"
	"github.com/dkeye/tempvoice/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	if cfg.AdminTokenTTL > 0 {
		tok, err := router.IssueAdminToken(cfg.Secret, "cli", time.Now(), cfg.AdminTokenTTL)
		if err != nil {
			return fmt.Errorf("issue admin token: %w", err)
		}
		fmt.Println(tok)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing.Endpoint, cfg.Tracing.Service)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}

	clk := clock.Real()
	users := app.NewRegistry()
	manager := app.NewRoomManager()
	layout := app.SeedLayout(manager, cfg.Rooms.LayoutConfig)
	authority := app.NewRoleAuthority(users, cfg.Authority)

	orchestrator := &orch.Orchestrator{
		Registry:  users,
		Rooms:     manager,
		Policy:    app.NewStrikePolicy(cfg.Limits.SlowStrikes),
		Media:     sfu.NewHub(),
		Authority: authority,
		Clock:     clk,
	}

	loop := events.NewLoop()
	pipeline := events.NewPipeline(loop)
	orchestrator.AddListener(pipeline)

	ctl := signaling.NewController(orchestrator, nil, clk, signaling.Options{
		ReadLimit:        cfg.ReadLimit,
		PingPeriod:       cfg.PingPeriod,
		RTC:              rtc.Config(cfg.ICEServers),
		ProposalLimit:    cfg.Limits.Proposals,
		ProposalInterval: cfg.Limits.ProposalInterval,
	})
	orchestrator.AddListener(ctl)

	managed := rooms.NewRegistry()
	lifecycle := rooms.NewLifecycle(rooms.Config{
		TriggerRoomID: layout.TriggerID,
		WaitingRoomID: layout.WaitingID,
		ParentID:      layout.CategoryID,
		NameFormat:    cfg.Rooms.NameFormat,
		DeletionDelay: cfg.Rooms.DeletionDelay,
	}, managed, orchestrator, authority, ctl, clk, loop)
	coordinator := proposals.NewCoordinator(proposals.Config{
		InviteTTL:      cfg.Proposals.InviteTTL,
		AutoMoveWindow: cfg.Proposals.AutoMoveWindow,
	}, managed, orchestrator, authority, ctl, clk, loop)
	lifecycle.AddObserver(coordinator)
	lifecycle.SetMoveClaims(coordinator)
	pipeline.Subscribe(lifecycle)
	pipeline.Subscribe(proposals.NewTriggerFeed(coordinator))
	ctl.Commands = commands.New(loop, coordinator, app.Directory{Users: users, Rooms: manager})

	r := router.SetupRouter(ctx, cfg, router.Deps{Orch: orchestrator, Signal: ctl, Proposals: coordinator})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	// The loop outlives the signal context so that shutdown can still run
	// room teardown on it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(loopCtx) })
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("trigger", string(layout.TriggerID)).Msg("voice server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		defer stopLoop()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
		if err := loop.Do(shutdownCtx, lifecycle.Shutdown); err != nil {
			log.Warn().Err(err).Msg("room teardown skipped")
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("flush traces")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("server exited gracefully")
	return nil
}
