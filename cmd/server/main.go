package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/shieldgate/gateway/internal/config"
	"github.com/shieldgate/gateway/internal/gateway"
	"github.com/shieldgate/gateway/internal/infra/http/handler"
	"github.com/shieldgate/gateway/internal/infra/http/routes"
	"github.com/shieldgate/gateway/internal/infra/postgres"
	"github.com/shieldgate/gateway/pkg/jwt"
	"github.com/shieldgate/gateway/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().Error("failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	log.Info("starting gateway", "app", cfg.App.Name, "env", cfg.App.Env)

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Error("failed to ensure schema", "error", err)
		return 1
	}
	log.Info("database connected")

	keys := postgres.NewAPIKeyRepository(db)
	users := postgres.NewUserRepository(db)
	reputations := postgres.NewReputationRepository(db)
	events := postgres.NewAuditRepository(db)

	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Error("failed to create token manager", "error", err)
		return 1
	}

	sink := gateway.NewSink(events, log)

	threatRules := gateway.DefaultThreatRules()
	riskRules := gateway.DefaultRiskRules()
	if cfg.Threat.RulesFile != "" {
		threatRules, riskRules, err = gateway.LoadRules(cfg.Threat.RulesFile)
		if err != nil {
			log.Error("failed to load rule table", "error", err, "file", cfg.Threat.RulesFile)
			return 1
		}
		log.Info("rule table loaded", "file", cfg.Threat.RulesFile,
			"threat_rules", len(threatRules), "risk_rules", len(riskRules))
	}

	ipFilterCfg := gateway.DefaultIPFilterConfig()
	ipFilterCfg.CacheTTL = cfg.Reputation.CacheTTL
	ipFilterCfg.AllowCountTTL = cfg.Reputation.AllowCountTTL
	ipFilter := gateway.NewIPFilter(reputations, sink, ipFilterCfg, log)

	threatCfg := gateway.DefaultThreatConfig()
	threatCfg.Rules = threatRules
	threatCfg.BurstWindow = cfg.Threat.BurstWindow
	threatCfg.BurstThreshold = cfg.Threat.BurstThreshold

	pipeline := &gateway.Pipeline{
		Authenticator: gateway.NewAuthenticator(keys, users, tokens, sink, log),
		IPFilter:      ipFilter,
		Threat:        gateway.NewThreatDetector(reputations, sink, threatCfg, log),
		Risk:          gateway.NewRiskScorer(riskRules),
		RateLimiter: gateway.NewRateLimiter(keys, reputations, sink, gateway.RateLimitConfig{
			Window:         cfg.RateLimit.Window,
			IdentityLimit:  cfg.RateLimit.GlobalPerMinute,
			RouteLimit:     cfg.RateLimit.RoutePerMinute,
			BlockThreshold: cfg.RateLimit.BlockThreshold,
		}, log),
		Cache: gateway.NewResponseCache(gateway.ResponseCacheConfig{
			TTL:      cfg.Cache.TTL,
			MaxItems: cfg.Cache.MaxItems,
		}, log),
	}

	router := routes.New(routes.Handlers{
		Health:  handler.NewHealthHandler(db),
		Auth:    handler.NewAuthHandler(users, tokens, sink, cfg.Auth, log),
		Service: handler.NewServiceHandler(events, pipeline.Cache, log),
		Admin:   handler.NewAdminHandler(events, reputations, keys, ipFilter, log),
	}, routes.Deps{
		Config:   cfg,
		Logger:   log,
		Pipeline: pipeline,
		Sink:     sink,
	})

	sweeper := cron.New()
	_, err = sweeper.AddFunc("@every 30s", func() {
		if removed := pipeline.Sweep(); removed > 0 {
			log.Debug("sweeper evicted expired state", "entries", removed)
		}
	})
	if err != nil {
		log.Error("failed to schedule sweeper", "error", err)
		return 1
	}
	sweeper.Start()
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		return 1
	}

	log.Info("shutdown complete")
	return 0
}
