package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/copperkettle/loyaltybridge/internal/httpserver"
	"github.com/copperkettle/loyaltybridge/internal/shopify"
	"github.com/copperkettle/loyaltybridge/internal/square"
	"github.com/copperkettle/loyaltybridge/internal/store/gormstore"
	"github.com/copperkettle/loyaltybridge/pkg/loyalty"
	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL        = "database-url"
	flagListenAddr         = "listen-addr"
	flagAllowedOrigins     = "allowed-origins"
	flagSquareAccessToken  = "square-access-token"
	flagSquareLocationID   = "square-location-id"
	flagSquareProgramID    = "square-program-id"
	flagSquareAPIVersion   = "square-api-version"
	flagShopifyShopDomain  = "shopify-shop-domain"
	flagShopifyAccessToken = "shopify-access-token"
	flagShopifyAPIVersion  = "shopify-api-version"
	flagAccrualEnabled     = "accrual-enabled"
	flagEarnRateMinor      = "earn-rate-minor"

	configKeyDatabaseURL        = "database_url"
	configKeyListenAddr         = "listen_addr"
	configKeyAllowedOrigins     = "allowed_origins"
	configKeySquareAccessToken  = "square_access_token"
	configKeySquareLocationID   = "square_location_id"
	configKeySquareProgramID    = "square_program_id"
	configKeySquareAPIVersion   = "square_api_version"
	configKeyShopifyShopDomain  = "shopify_shop_domain"
	configKeyShopifyAccessToken = "shopify_access_token"
	configKeyShopifyAPIVersion  = "shopify_api_version"
	configKeyAccrualEnabled     = "accrual_enabled"
	configKeyEarnRateMinor      = "earn_rate_minor"

	defaultDatabaseURL = "sqlite:///tmp/loyaltybridge.db"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "loyaltyd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &httpserver.Config{}
	cmd := &cobra.Command{
		Use:           "loyaltyd",
		Short:         "Square loyalty bridge for Shopify storefronts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.PersistentFlags().String(flagDatabaseURL, defaultDatabaseURL, "database connection string (postgres:// or sqlite://)")
	cmd.PersistentFlags().String(flagListenAddr, "", "HTTP listen address")
	cmd.PersistentFlags().String(flagAllowedOrigins, "", "comma separated CORS origins")
	cmd.PersistentFlags().String(flagSquareAccessToken, "", "Square API access token")
	cmd.PersistentFlags().String(flagSquareLocationID, "", "Square location id")
	cmd.PersistentFlags().String(flagSquareProgramID, "", "Square loyalty program id")
	cmd.PersistentFlags().String(flagSquareAPIVersion, "", "Square-Version header value (defaults to the client's pinned version)")
	cmd.PersistentFlags().String(flagShopifyShopDomain, "", "Shopify shop domain (myshop.myshopify.com)")
	cmd.PersistentFlags().String(flagShopifyAccessToken, "", "Shopify Admin API access token")
	cmd.PersistentFlags().String(flagShopifyAPIVersion, "", "Shopify Admin API version (defaults to the client's pinned version)")
	cmd.PersistentFlags().Bool(flagAccrualEnabled, false, "accrue points from order webhooks")
	cmd.PersistentFlags().Int64(flagEarnRateMinor, 0, "minor currency units per point earned")

	cmd.AddCommand(newSyncRewardsCommand(cfg))

	return cmd
}

// newSyncRewardsCommand runs one catalog sync pass and exits. Useful for
// cron or a first-time bootstrap before the server goes live.
func newSyncRewardsCommand(cfg *httpserver.Config) *cobra.Command {
	return &cobra.Command{
		Use:           "sync-rewards",
		Short:         "Sync the Square reward tier catalog and exit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd.Root(), cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			service, cleanup, err := buildService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			result, err := service.SyncCatalog(ctx)
			if err != nil {
				return err
			}
			logger.Info("catalog sync complete",
				zap.Int("synced", result.Synced),
				zap.Int("skipped", result.Skipped),
				zap.Int("total", result.Total))
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command, cfg *httpserver.Config) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	envBindings := map[string]string{
		configKeyDatabaseURL:        "DATABASE_URL",
		configKeyListenAddr:         "LISTEN_ADDR",
		configKeyAllowedOrigins:     "ALLOWED_ORIGINS",
		configKeySquareAccessToken:  "SQUARE_ACCESS_TOKEN",
		configKeySquareLocationID:   "SQUARE_LOCATION_ID",
		configKeySquareProgramID:    "SQUARE_LOYALTY_PROGRAM_ID",
		configKeySquareAPIVersion:   "SQUARE_API_VERSION",
		configKeyShopifyShopDomain:  "SHOPIFY_SHOP_DOMAIN",
		configKeyShopifyAccessToken: "SHOPIFY_ACCESS_TOKEN",
		configKeyShopifyAPIVersion:  "SHOPIFY_API_VERSION",
		configKeyAccrualEnabled:     "ACCRUAL_ENABLED",
		configKeyEarnRateMinor:      "EARN_RATE_MINOR",
	}
	for configKey, envName := range envBindings {
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
	}

	flagBindings := map[string]string{
		configKeyDatabaseURL:        flagDatabaseURL,
		configKeyListenAddr:         flagListenAddr,
		configKeyAllowedOrigins:     flagAllowedOrigins,
		configKeySquareAccessToken:  flagSquareAccessToken,
		configKeySquareLocationID:   flagSquareLocationID,
		configKeySquareProgramID:    flagSquareProgramID,
		configKeySquareAPIVersion:   flagSquareAPIVersion,
		configKeyShopifyShopDomain:  flagShopifyShopDomain,
		configKeyShopifyAccessToken: flagShopifyAccessToken,
		configKeyShopifyAPIVersion:  flagShopifyAPIVersion,
		configKeyAccrualEnabled:     flagAccrualEnabled,
		configKeyEarnRateMinor:      flagEarnRateMinor,
	}
	for configKey, flagName := range flagBindings {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(flagName)
		}
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(configKey, flag); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	cfg.AllowedOrigins = httpserver.ParseAllowedOrigins(viper.GetString(configKeyAllowedOrigins))
	cfg.SquareAccessToken = viper.GetString(configKeySquareAccessToken)
	cfg.SquareLocationID = viper.GetString(configKeySquareLocationID)
	cfg.SquareProgramID = viper.GetString(configKeySquareProgramID)
	cfg.SquareAPIVersion = viper.GetString(configKeySquareAPIVersion)
	cfg.ShopifyShopDomain = viper.GetString(configKeyShopifyShopDomain)
	cfg.ShopifyAccessToken = viper.GetString(configKeyShopifyAccessToken)
	cfg.ShopifyAPIVersion = viper.GetString(configKeyShopifyAPIVersion)
	cfg.AccrualEnabled = viper.GetBool(configKeyAccrualEnabled)
	cfg.EarnRateMinor = viper.GetInt64(configKeyEarnRateMinor)

	return cfg.Validate()
}

func runServer(ctx context.Context, cfg *httpserver.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	service, cleanup, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	return httpserver.Run(ctx, *cfg, service, logger)
}

func buildService(ctx context.Context, cfg *httpserver.Config, logger *zap.Logger) (*loyalty.Service, func() error, error) {
	gormDB, cleanup, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}

	if err := gormstore.Migrate(gormDB); err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("auto migrate: %w", err)
	}

	store := gormstore.New(gormDB)

	squareClient, err := square.NewClient(square.Config{
		AccessToken:   cfg.SquareAccessToken,
		LocationID:    cfg.SquareLocationID,
		APIVersion:    cfg.SquareAPIVersion,
		EarnRateMinor: cfg.EarnRateMinor,
		Timeout:       cfg.UpstreamTimeout,
	}, store, logger)
	if err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("square client init: %w", err)
	}

	shopifyClient, err := shopify.NewClient(shopify.Config{
		ShopDomain:  cfg.ShopifyShopDomain,
		AccessToken: cfg.ShopifyAccessToken,
		APIVersion:  cfg.ShopifyAPIVersion,
		Timeout:     cfg.UpstreamTimeout,
	}, logger)
	if err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("shopify client init: %w", err)
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := loyalty.NewService(store, squareClient, shopifyClient, cfg.SquareProgramID, clock,
		loyalty.WithOperationLogger(operationLogger{logger: logger}))
	if err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("loyalty service init: %w", err)
	}
	return service, cleanup, nil
}

// operationLogger adapts zap to the domain's logging callback.
type operationLogger struct {
	logger *zap.Logger
}

func (adapter operationLogger) LogOperation(_ context.Context, entry loyalty.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.ProfileID != "" {
		fields = append(fields, zap.String("profile_id", entry.ProfileID))
	}
	if entry.AccountID != "" {
		fields = append(fields, zap.String("account_id", entry.AccountID))
	}
	if entry.RewardID != "" {
		fields = append(fields, zap.String("reward_id", entry.RewardID))
	}
	if entry.DiscountCode != "" {
		fields = append(fields, zap.String("discount_code", entry.DiscountCode))
	}
	if entry.Points != 0 {
		fields = append(fields, zap.Int64("points", entry.Points))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("loyalty operation", fields...)
		return
	}
	adapter.logger.Info("loyalty operation", fields...)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "loyaltybridge.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
