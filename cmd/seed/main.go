package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"vendor-billing/internal/config"
	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/repository"
	"vendor-billing/internal/infra/api"
	pg "vendor-billing/internal/infra/db/postgres"
	"vendor-billing/internal/infra/logging"
	"vendor-billing/internal/infra/security"
	"vendor-billing/internal/usecase"
)

const adminEmail = "admin@vendor-billing.local"

var defaultPackages = []usecase.PackageInput{
	{Name: "Starter", Description: "List up to 20 products", Price: decimal.NewFromInt(500), Currency: "KES", Duration: 1, DurationUnit: model.DurationUnitMonth, ProductLimit: 20, FeaturedProductsLimit: 1},
	{Name: "Growth", Description: "List up to 100 products", Price: decimal.NewFromInt(1500), Currency: "KES", Duration: 1, DurationUnit: model.DurationUnitMonth, ProductLimit: 100, FeaturedProductsLimit: 5},
	{Name: "Pro Annual", Description: "Unlimited listings for a year", Price: decimal.NewFromInt(15000), Currency: "KES", Duration: 1, DurationUnit: model.DurationUnitYear, ProductLimit: 0, FeaturedProductsLimit: 20},
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	encKey := cfg.Security.EncryptionKey
	if encKey == "" {
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}

	// ---- Admin vendor ----
	vendors := pg.NewPostgresVendorRepo(pool, encSvc)
	admin, err := vendors.FindByEmail(ctx, repository.NoTX, adminEmail)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		admin, err = model.NewVendor("", adminEmail, "Platform Admin", "", model.RoleAdmin)
		if err != nil {
			logger.Fatal().Err(err).Msg("build admin vendor")
		}
		if err := vendors.Save(ctx, repository.NoTX, admin); err != nil {
			logger.Fatal().Err(err).Msg("save admin vendor")
		}
		fmt.Printf("seeded admin vendor id=%s\n", admin.ID)
	case err != nil:
		logger.Fatal().Err(err).Msg("find admin vendor")
	default:
		fmt.Printf("admin vendor already present id=%s\n", admin.ID)
	}

	// ---- Packages ----
	packageUC := usecase.NewPackageUseCase(pg.NewPostgresPackageRepo(pool), logger)
	existing, err := packageUC.ListActive(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("list packages")
	}
	if len(existing) > 0 {
		fmt.Printf("%d packages already present. No changes.\n", len(existing))
		for _, p := range existing {
			fmt.Printf("  - %s (id=%s, %d %s, %s %s)\n", p.Name, p.ID, p.Duration, p.DurationUnit, p.Price.StringFixed(2), p.Currency)
		}
	} else {
		actor := model.Actor{UserID: admin.ID, Role: model.RoleAdmin}
		for _, in := range defaultPackages {
			p, err := packageUC.Create(ctx, actor, in)
			if err != nil {
				logger.Fatal().Err(err).Str("package", in.Name).Msg("create package")
			}
			fmt.Printf("seeded: %s (id=%s, %d %s, %s %s)\n", p.Name, p.ID, p.Duration, p.DurationUnit, p.Price.StringFixed(2), p.Currency)
		}
	}

	// ---- Admin token ----
	token, err := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Mint(admin.ID, model.RoleAdmin)
	if err != nil {
		logger.Fatal().Err(err).Msg("mint admin token")
	}
	fmt.Printf("admin bearer token (valid %s):\n%s\n", cfg.Auth.TokenTTL, token)
	fmt.Println("Seeding complete.")
}
