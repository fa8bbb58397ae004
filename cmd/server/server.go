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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harrylevesque/makerdash/internal/api"
	"github.com/harrylevesque/makerdash/internal/auth"
	"github.com/harrylevesque/makerdash/internal/certs"
	"github.com/harrylevesque/makerdash/internal/config"
	"github.com/harrylevesque/makerdash/internal/crypto"
	"github.com/harrylevesque/makerdash/internal/dashboard"
	"github.com/harrylevesque/makerdash/internal/events"
	"github.com/harrylevesque/makerdash/internal/files"
	"github.com/harrylevesque/makerdash/internal/maker"
	"github.com/harrylevesque/makerdash/internal/middleware"
	"github.com/harrylevesque/makerdash/internal/scheduler"
	"github.com/harrylevesque/makerdash/internal/store"
	"github.com/harrylevesque/makerdash/internal/utils"
)

const (
	hubBuffer          = 64
	limiterCleanupTick = 10 * time.Minute
)

func run(parent context.Context, cfg config.Config) error {
	logger, err := utils.NewLogger(cfg.Logger())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	master, err := files.ReadMasterKey(cfg.Security.MasterKeyFile)
	switch {
	case errors.Is(err, files.ErrNoMasterKey):
		logger.Warn("no master key configured, secrets are stored unencrypted",
			zap.String("master_key_file", cfg.Security.MasterKeyFile))
	case err != nil:
		return err
	}

	var secretKey []byte
	if master != nil {
		if secretKey, err = crypto.DeriveKey(master, crypto.InfoSecrets); err != nil {
			return fmt.Errorf("derive secrets key: %w", err)
		}
	}

	st, err := store.OpenStore(cfg.Data.DBPath, secretKey)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	settings, err := files.NewSettingsStore(cfg.Data.Root, master)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}

	issuer, err := newIssuer(cfg, master, logger)
	if err != nil {
		return err
	}

	mgr := maker.NewManager(logger.Named("maker"))
	defer mgr.Close()
	hub := events.NewHub(hubBuffer)
	defer hub.Close()

	svc := dashboard.New(st, mgr, settings, hub, logger.Named("dashboard"), dashboard.Config{
		DataRoot:   cfg.Data.Root,
		RPCTimeout: cfg.Bitcoind.Timeout,
	})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Demo {
		seeded, err := svc.SeedDemo(ctx)
		if err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		if seeded {
			logger.Info("demo makers seeded")
		}
	}
	started, err := svc.Restore(ctx)
	if err != nil {
		logger.Warn("some makers failed to start", zap.Error(err))
	}
	logger.Info("makers restored", zap.Int("running", started))

	sched, err := scheduler.New(mgr, scheduler.Config{
		Health: cfg.Schedule.Health,
		Sync:   cfg.Schedule.Sync,
	}, logger.Named("scheduler"), scheduler.WithHealthHook(svc.RecordHealth))
	if err != nil {
		return err
	}
	sched.Start()

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
	router := api.NewRouter(api.Options{
		Service:     svc,
		Logger:      logger.Named("http"),
		StaticDir:   cfg.Server.StaticDir,
		CORS:        middleware.NewCORS(cfg.CORS.AllowedOrigins),
		RateLimiter: limiter,
		Issuer:      issuer,
		Credentials: auth.Credentials{Username: cfg.Auth.Username, PasswordHash: cfg.Auth.PasswordHash},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	var tlsCerts *certs.Manager
	if cfg.TLSEnabled() {
		if tlsCerts, err = certs.NewManager(cfg.Server.TLSCert, cfg.Server.TLSKey, logger.Named("tls")); err != nil {
			return err
		}
		srv.TLSConfig = tlsCerts.TLSConfig()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.Bool("tls", tlsCerts != nil),
			zap.Bool("auth", issuer != nil))
		var err error
		if tlsCerts != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		ticker := time.NewTicker(limiterCleanupTick)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				limiter.Cleanup()
			}
		}
	})
	if tlsCerts != nil {
		g.Go(func() error {
			reloadOnHangup(gctx, tlsCerts, logger)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		// Closing the hub ends open websocket streams, which Shutdown does
		// not wait for.
		hub.Close()
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler stop", zap.Error(err))
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// newIssuer returns nil when no admin password is configured. Without an
// explicit jwt_secret the signing key is derived from the master key, or made
// up for this run so tokens do not survive a restart.
func newIssuer(cfg config.Config, master []byte, logger *zap.Logger) (*auth.Issuer, error) {
	if !cfg.AuthEnabled() {
		logger.Warn("auth.password_hash is empty, the API is open")
		return nil, nil
	}
	var secret []byte
	switch {
	case cfg.Auth.JWTSecret != "":
		secret = []byte(cfg.Auth.JWTSecret)
	case master != nil:
		k, err := crypto.DeriveKey(master, crypto.InfoJWT)
		if err != nil {
			return nil, fmt.Errorf("derive jwt key: %w", err)
		}
		secret = k
	default:
		secret = crypto.MustRandom(32)
	}
	return auth.NewIssuer(secret, cfg.Auth.TokenTTL)
}

func reloadOnHangup(ctx context.Context, m *certs.Manager, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := m.Reload(); err != nil {
				logger.Error("tls reload failed", zap.Error(err))
				continue
			}
			logger.Info("tls certificate reloaded", zap.Duration("expires_in", m.ExpiresIn()))
		}
	}
}
