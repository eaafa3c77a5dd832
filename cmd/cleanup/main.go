package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sitegrid/sitegrid/internal/audit"
	"github.com/sitegrid/sitegrid/internal/config"
	"github.com/sitegrid/sitegrid/internal/store/postgres"
)

// cleanup removes rows the running service only sweeps opportunistically:
// expired permission overrides, lapsed break-glass grants, and audit
// records past the retention window. Intended to run from cron.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

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
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	now := time.Now()

	overrides := postgres.NewOverrideRepository(db)
	n, err := overrides.PurgeExpired(ctx, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Override purge failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Purged %d expired permission overrides.\n", n)

	breakglass := postgres.NewBreakGlassRepository(db)
	n, err = breakglass.PurgeExpired(ctx, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Break-glass purge failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Purged %d expired break-glass grants.\n", n)

	// Audit retention runs per tenant so each purge lands in that
	// tenant's own trail.
	auditService := audit.NewService(postgres.NewAuditRepository(db))
	tenants := postgres.NewTenantRepository(db)
	cutoff := now.AddDate(0, 0, -cfg.Audit.RetentionDays)

	const pageSize = 100
	var purged int64
	for offset := 0; ; offset += pageSize {
		page, err := tenants.List(ctx, pageSize, offset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Tenant listing failed: %v\n", err)
			os.Exit(1)
		}
		if len(page) == 0 {
			break
		}
		for _, t := range page {
			n, err := auditService.Purge(ctx, t.ID, "system", cutoff)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Audit purge failed for tenant %s: %v\n", t.ID, err)
				os.Exit(1)
			}
			purged += n
		}
		if len(page) < pageSize {
			break
		}
	}
	fmt.Printf("Purged %d audit records older than %d days.\n", purged, cfg.Audit.RetentionDays)
}
