package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"civreg.org/internal/auth"
	"civreg.org/internal/config"
	"civreg.org/internal/grpcapi"
	"civreg.org/internal/httpapi"
	"civreg.org/internal/obs"
	"civreg.org/internal/registry"
	"civreg.org/internal/requests"
	"civreg.org/internal/store/memory"
	"civreg.org/internal/store/pg"
	"civreg.org/internal/store/redisrev"
	"civreg.org/internal/users"
)

// backend is what both storage implementations provide.
type backend interface {
	auth.UserStore
	registry.Store
	requests.Store
	Ping(ctx context.Context) error
}

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	build := obs.ResolveBuildInfo(cfg.Version, cfg.Commit)
	if err := obs.PublishBuildInfo(prometheus.DefaultRegisterer, build); err != nil {
		log.WithError(err).Fatal("register build info")
	}

	if cfg.SecretGenerated {
		log.Warn("CIVREG_JWT_SECRET not set; using a random per-process secret, tokens will not survive a restart")
	}

	ready := httpapi.ReadyProbe{}

	var store backend
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.WithError(err).Fatal("open db")
		}
		defer pgStore.Close()
		store = pgStore
		ready.DB = pgStore
		log.Info("using postgres storage")
	} else {
		store = memory.New()
		log.Warn("CIVREG_PG_DSN not set; using in-memory storage")
	}

	tokenOpts := []auth.TokenOption{
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithAudience(cfg.JWTAudience),
		auth.WithTTL(cfg.TokenTTL()),
		auth.WithRefreshWindow(cfg.RefreshWindow()),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		revocations := redisrev.New(rdb)
		ready.Redis = revocations
		tokenOpts = append(tokenOpts, auth.WithRevoker(revocations))
		log.WithField("addr", cfg.RedisAddr).Info("token revocation enabled")
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, store, tokenOpts...)
	if err != nil {
		log.WithError(err).Fatal("token service")
	}
	authSvc, err := auth.NewService(store, nil, tokens)
	if err != nil {
		log.WithError(err).Fatal("auth service")
	}
	resolver := auth.NewResolver(auth.WithDecisionObserver(obs.ObserveDecision))
	userSvc := users.NewService(store, resolver)
	registrySvc := registry.NewService(store, store, resolver)
	requestSvc := requests.NewService(store, resolver)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	created, err := userSvc.Bootstrap(bootCtx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword)
	bootCancel()
	if err != nil {
		log.WithError(err).Fatal("bootstrap super admin")
	}
	if created {
		log.WithField("username", cfg.BootstrapAdminUsername).Info("bootstrap super admin created")
	}

	api, err := httpapi.New(httpapi.Deps{
		Auth:            authSvc,
		Users:           userSvc,
		Registry:        registrySvc,
		Requests:        requestSvc,
		Ready:           ready,
		Build:           build,
		RateBurst:       cfg.RateBurst,
		RatePerSec:      cfg.RatePerSec,
		LoginRatePerMin: cfg.LoginRatePerMin,
		Production:      !cfg.IsDevelopment(),
	})
	if err != nil {
		log.WithError(err).Fatal("http api")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpcapi.NewServer(ready)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.WithError(err).Fatal("grpc listen")
	}

	log.WithFields(logrus.Fields{
		"version": build.Version,
		"commit":  build.Commit,
		"addr":    cfg.Addr,
		"grpc":    cfg.GRPCAddr,
		"env":     cfg.Env,
	}).Info("starting civreg-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.WithError(err).Error("grpc serve")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	grpcServer.GracefulStop()
	log.Info("stopped")
}
