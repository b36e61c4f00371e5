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

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bloksphere/stratosphere-patient-app/internal/config"
	"github.com/bloksphere/stratosphere-patient-app/internal/domain/account"
	"github.com/bloksphere/stratosphere-patient-app/internal/domain/appointment"
	"github.com/bloksphere/stratosphere-patient-app/internal/domain/document"
	"github.com/bloksphere/stratosphere-patient-app/internal/domain/gdpr"
	"github.com/bloksphere/stratosphere-patient-app/internal/domain/health"
	"github.com/bloksphere/stratosphere-patient-app/internal/domain/medication"
	"github.com/bloksphere/stratosphere-patient-app/internal/domain/message"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/auth"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/blobstore"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/db"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/middleware"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

// accountLookupAdapter adapts the account repository to the auth.AccountLookup
// interface, avoiding a circular import between the auth and account packages.
type accountLookupAdapter struct {
	repo account.AccountRepository
}

func (a *accountLookupAdapter) FindAccountByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	acc, err := a.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &auth.Account{
		ID:     acc.ID,
		Email:  acc.Email,
		Status: acc.Status,
	}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "patient-api",
		Short: "Patient-facing clinic API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Security primitives
	hasher := security.NewPasswordHasher(cfg.PasswordPepper)

	tokens, err := security.NewTokenService(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token service")
	}

	encKey, err := cfg.EncryptionKeyBytes()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid encryption key")
	}
	var cipher *security.FieldCipher
	if encKey != nil {
		cipher, err = security.NewFieldCipher(encKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create field cipher")
		}
	} else {
		// Validate rejects this path in production.
		logger.Warn().Msg("ENCRYPTION_KEY not set, field encryption is running in insecure fallback mode")
		cipher = security.NewInsecureFallbackCipher()
	}

	// Audit trail
	auditor := audit.NewRecorder(audit.NewPGStore(pool), logger)

	// Blob storage
	var blobs blobstore.BlobStore
	if cfg.S3Bucket != "" {
		blobs, err = blobstore.NewS3Store(ctx, blobstore.S3Config{
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create blob store")
		}
	} else {
		logger.Warn().Msg("S3_BUCKET not set, attachments and documents are stored in memory")
		blobs = blobstore.NewMemoryStore()
	}

	// Repositories
	accountRepo := account.NewAccountRepoPG(pool)
	sessionRepo := account.NewSessionRepoPG(pool)
	measurementRepo := health.NewMeasurementRepoPG(pool)
	symptomRepo := health.NewSymptomRepoPG(pool)
	appointmentRepo := appointment.NewRepoPG(pool)
	messageRepo := message.NewMessageRepoPG(pool)
	attachmentRepo := message.NewAttachmentRepoPG(pool)
	documentRepo := document.NewRepoPG(pool)
	consentRepo := gdpr.NewConsentRepoPG(pool)
	dataRequestRepo := gdpr.NewDataRequestRepoPG(pool)
	medicationRepo := medication.NewMedicationRepoPG(pool)
	adherenceRepo := medication.NewAdherenceRepoPG(pool)

	// Services
	accountSvc := account.NewService(accountRepo, sessionRepo, hasher, cipher, tokens, auditor)
	healthSvc := health.NewService(measurementRepo, symptomRepo, cipher, auditor)
	appointmentSvc := appointment.NewService(appointmentRepo, cipher, auditor)
	messageSvc := message.NewService(messageRepo, attachmentRepo, cipher, blobs, auditor)
	documentSvc := document.NewService(documentRepo, cipher, blobs, auditor)
	gdprSvc := gdpr.NewService(consentRepo, dataRequestRepo, accountRepo, cipher, auditor)
	medicationSvc := medication.NewService(medicationRepo, adherenceRepo, cipher, auditor)

	// Auth resolver
	resolver := auth.NewResolver(tokens, &accountLookupAdapter{repo: accountRepo})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Domain routes
	account.NewHandler(accountSvc).RegisterRoutes(apiV1, resolver)
	health.NewHandler(healthSvc).RegisterRoutes(apiV1, resolver)
	appointment.NewHandler(appointmentSvc).RegisterRoutes(apiV1, resolver)
	message.NewHandler(messageSvc).RegisterRoutes(apiV1, resolver)
	document.NewHandler(documentSvc).RegisterRoutes(apiV1, resolver)
	gdpr.NewHandler(gdprSvc).RegisterRoutes(apiV1, resolver)
	medication.NewHandler(medicationSvc).RegisterRoutes(apiV1, resolver)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler("patient-api", pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
