// Copyright 2026 The SiteGrid Authors
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

	"github.com/sitegrid/sitegrid/internal/audit"
	"github.com/sitegrid/sitegrid/internal/config"
	"github.com/sitegrid/sitegrid/internal/guard"
	"github.com/sitegrid/sitegrid/internal/module"
	"github.com/sitegrid/sitegrid/internal/observability/logger"
	"github.com/sitegrid/sitegrid/internal/observability/metrics"
	"github.com/sitegrid/sitegrid/internal/observability/tracing"
	"github.com/sitegrid/sitegrid/internal/permission"
	"github.com/sitegrid/sitegrid/internal/security"
	"github.com/sitegrid/sitegrid/internal/store/postgres"
	"github.com/sitegrid/sitegrid/internal/tenant"
	"github.com/sitegrid/sitegrid/internal/tenantdb"
	transportHTTP "github.com/sitegrid/sitegrid/internal/transport/http"
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
	slog.Info("starting sitegrid tenancy core",
		logger.String("resolution_policy", string(cfg.Security.ResolutionPolicy)))

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initialize context
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
	authzMetrics, err := metrics.NewAuthzMetrics(meter)
	if err != nil {
		slog.Error("failed to register authz metrics", logger.Error(err))
	}

	// Initialize the control-plane database
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories
	membershipRepo := postgres.NewMembershipRepository(db)
	overrideRepo := postgres.NewOverrideRepository(db)
	entitlementRepo := postgres.NewEntitlementRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)
	breakglassRepo := postgres.NewBreakGlassRepository(db)
	resourceLookup := postgres.NewResourceLookup(db)
	projectRepo := postgres.NewProjectRepository()

	// Initialize services
	auditService := audit.NewService(auditRepo)
	resolver := security.NewResolver(membershipRepo, overrideRepo, cfg.Security.ResolutionPolicy, cfg.Security.ResolveTimeout)
	permissionService := permission.NewService(membershipRepo, overrideRepo, auditService)
	moduleService := module.NewAccessService(entitlementRepo, auditService, cfg.Security.ModuleCacheTTL)
	tenantService := tenant.NewService(tenantRepo, membershipRepo, moduleService, auditService)
	ownershipGuard := guard.NewGuard(resourceLookup, breakglassRepo, auditService)

	// The tenant database router serves shared tenants from the
	// control-plane pool and opens dedicated pools on demand.
	dbRouter := tenantdb.NewRouter(tenantRepo, db.Pool(), tenantdb.PgxOpener)
	defer dbRouter.Close()

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		resolver,
		permissionService,
		moduleService,
		tenantService,
		auditService,
		ownershipGuard,
		dbRouter,
		projectRepo,
		[]byte(cfg.Security.JWTSigningKey),
		authzMetrics,
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Periodic expiry sweep: lapsed overrides and break-glass grants.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if n, err := permissionService.PurgeExpired(ctx); err != nil {
				slog.ErrorContext(ctx, "failed to purge expired overrides", logger.Error(err))
			} else if n > 0 {
				slog.InfoContext(ctx, "purged expired overrides", logger.RowsAffected(n))
			}
			if n, err := ownershipGuard.PurgeExpired(ctx); err != nil {
				slog.ErrorContext(ctx, "failed to purge expired break-glass grants", logger.Error(err))
			} else if n > 0 {
				slog.InfoContext(ctx, "purged expired break-glass grants", logger.RowsAffected(n))
			}
		}
	}()

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

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
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
