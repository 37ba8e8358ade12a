// Copyright 2026 The OpenEnroll Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openenroll/openenroll/internal/audit"
	"github.com/openenroll/openenroll/internal/config"
	"github.com/openenroll/openenroll/internal/enrollment"
	"github.com/openenroll/openenroll/internal/identity"
	"github.com/openenroll/openenroll/internal/observability/logger"
	"github.com/openenroll/openenroll/internal/observability/metrics"
	"github.com/openenroll/openenroll/internal/observability/tracing"
	"github.com/openenroll/openenroll/internal/platform"
	"github.com/openenroll/openenroll/internal/store/postgres"
	"github.com/openenroll/openenroll/internal/tenant"
	transportHTTP "github.com/openenroll/openenroll/internal/transport/http"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting openenroll")

	ctx := context.Background()

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	// Platform catalog (cross-tenant metadata).
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.PlatformDB.Host,
		Port:         cfg.PlatformDB.Port,
		User:         cfg.PlatformDB.User,
		Password:     cfg.PlatformDB.Password,
		Database:     cfg.PlatformDB.Database,
		SSLMode:      cfg.PlatformDB.SSLMode,
		MaxOpenConns: cfg.PlatformDB.MaxOpenConns,
		MaxIdleConns: cfg.PlatformDB.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to catalog database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to catalog database")

	// Per-tenant storage handle registry.
	registry, err := tenant.NewRegistry(tenant.Config{
		Root:           cfg.TenantStorage.Root,
		MaxOpenHandles: cfg.TenantStorage.MaxOpenHandles,
		BusyTimeout:    cfg.TenantStorage.BusyTimeout,
		ReleaseTimeout: cfg.TenantStorage.ReleaseTimeout,
	}, meter)
	if err != nil {
		slog.Error("failed to create tenant registry", logger.Error(err))
		os.Exit(1)
	}

	auditLogger := audit.NewSlogLogger()

	var blacklist identity.Blacklist
	if cfg.Redis.Enabled {
		blacklist = identity.NewRedisBlacklist(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
		slog.Info("using redis token blacklist")
	} else {
		memBlacklist := identity.NewMemoryBlacklist()
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				memBlacklist.Sweep()
			}
		}()
		blacklist = memBlacklist
	}

	passwordHasher := identity.NewPasswordHasher(
		cfg.Auth.Argon2Memory,
		cfg.Auth.Argon2Iterations,
		cfg.Auth.Argon2Parallelism,
		cfg.Auth.Argon2SaltLength,
		cfg.Auth.Argon2KeyLength,
	)
	tokenIssuer := identity.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, blacklist)

	identityService := identity.NewService(
		passwordHasher,
		tokenIssuer,
		auditLogger,
		cfg.Auth.LockoutMaxAttempts,
		cfg.Auth.LockoutDuration,
	)
	platformService := platform.NewService(
		postgres.NewTenantRepository(db),
		platform.RegistryStorage{Registry: registry},
		auditLogger,
	)
	ledger := enrollment.NewLedger(auditLogger)

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	handler := transportHTTP.NewHandler(
		registry,
		platformService,
		identityService,
		ledger,
		auditLogger,
		cfg.Server.PlatformKey,
	)
	router := transportHTTP.NewRouter(handler, rateLimiter)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		slog.Error("registry shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}
