// Copyright 2026 The Gatewarden Authors
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

	"github.com/gatewarden/gatewarden/internal/access"
	"github.com/gatewarden/gatewarden/internal/answer"
	"github.com/gatewarden/gatewarden/internal/audit"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/id"
	"github.com/gatewarden/gatewarden/internal/identity"
	"github.com/gatewarden/gatewarden/internal/observability/logger"
	"github.com/gatewarden/gatewarden/internal/observability/metrics"
	"github.com/gatewarden/gatewarden/internal/observability/tracing"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/ratelimit"
	"github.com/gatewarden/gatewarden/internal/store/postgres"
	"github.com/gatewarden/gatewarden/internal/token"
	transportHTTP "github.com/gatewarden/gatewarden/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting gatewarden access gateway")

	// CLI subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if len(os.Args) > 1 && os.Args[1] == "seed" {
		if err := runSeed(cfg); err != nil {
			fmt.Printf("Seed failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	// Initialize tracer
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

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}
	accessMetrics, err := metrics.NewAccessMetrics(meter)
	if err != nil {
		slog.Error("failed to create access metrics", logger.Error(err))
		os.Exit(1)
	}

	// Initialize helpers
	auditLogger := audit.NewSlogLogger()
	passwordHasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)

	// Credential store backend
	var credStore identity.CredentialStore
	switch cfg.Users.Backend {
	case "postgres":
		db, err := newDB(ctx, cfg)
		if err != nil {
			slog.Error("failed to connect to database", logger.Error(err))
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("connected to database")
		credStore = postgres.NewPrincipalRepository(db)
	default:
		records, err := identity.ParseStaticUsers(cfg.Users.Static, passwordHasher)
		if err != nil {
			slog.Error("failed to parse static users", logger.Error(err))
			os.Exit(1)
		}
		credStore, err = identity.NewStaticStore(records)
		if err != nil {
			slog.Error("failed to build static store", logger.Error(err))
			os.Exit(1)
		}
	}

	// Role policy table, validated before serving
	table := policy.Defaults()
	if err := table.Validate(); err != nil {
		slog.Error("invalid policy table", logger.Error(err))
		os.Exit(1)
	}

	// Token service and validator
	tokenCfg := token.Config{
		Secret:   []byte(cfg.Token.Secret),
		Issuer:   cfg.Token.Issuer,
		Audience: cfg.Token.Audience,
		TTL:      cfg.Token.TTL,
	}
	tokenService := token.NewService(credStore, passwordHasher, auditLogger, tokenCfg)
	validator := token.NewValidator(tokenCfg)

	// Per-principal rate limiter
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		EvictionWindow: cfg.RateLimit.EvictionWindow,
		SweepInterval:  cfg.RateLimit.SweepInterval,
	})
	defer limiter.Close()

	// Access pipeline and downstream workload
	pipeline := access.NewPipeline(validator, table, limiter, auditLogger)
	answerService := answer.NewStubService("")

	// Per-IP limiter for the login endpoint
	loginLimiter := transportHTTP.NewLoginLimiter(cfg.RateLimit.LoginRPS, cfg.RateLimit.LoginBurst)
	defer loginLimiter.Close()

	// Initialize HTTP handler and router
	handler := transportHTTP.NewHandler(tokenService, pipeline, answerService, table, accessMetrics)
	router := transportHTTP.NewRouter(handler, loginLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func newDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	return postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := newDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}

// runSeed hashes the USERS_STATIC list and inserts it into the postgres
// backend. Intended for first-run provisioning of a fresh database.
func runSeed(cfg *config.Config) error {
	ctx := context.Background()
	db, err := newDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	hasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	records, err := identity.ParseStaticUsers(cfg.Users.Static, hasher)
	if err != nil {
		return err
	}

	repo := postgres.NewPrincipalRepository(db)
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = id.NewUUIDv7()
		}
		if err := repo.Create(ctx, rec); err != nil {
			return fmt.Errorf("seed %s: %w", rec.Username, err)
		}
		fmt.Printf("Seeded principal %s (%s)\n", rec.Username, rec.Role)
	}
	return nil
}
