package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/config"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/handler"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/realtime"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/repository"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/token"
	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/usecase"
	"github.com/TheSpideX/supporthub-api/shared/auth"
	"github.com/TheSpideX/supporthub-api/shared/mailer"
	"github.com/TheSpideX/supporthub-api/shared/validate"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "auth-service").Logger()

	cfg := config.NewAuthServiceConfig(&logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to disconnect from mongodb")
		}
	}()
	db := client.Database(cfg.MongoDatabase)

	userRepo := repository.NewUserMongoRepository(ctx, &logger, db)
	deviceRepo := repository.NewDeviceMongoRepository(ctx, &logger, db)
	sessionRepo := repository.NewSessionMongoRepository(db)
	revokedRepo := repository.NewRevokedTokenMongoRepository(ctx, &logger, db)

	validator, err := validate.NewValidator()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create validator")
	}

	jwtAuth := auth.NewJWTAuthenticator(cfg.Token.Issuer, cfg.Token.Issuer)
	engine := token.NewEngine(jwtAuth, revokedRepo, cfg.Token)

	// Security alert emails are skipped entirely when SMTP is not configured.
	var securityMailer usecase.SecurityMailer
	if os.Getenv("SMTP_HOST") != "" {
		securityMailer = mailer.NewMailer(&logger)
	} else {
		logger.Warn().Msg("SMTP not configured, new device alerts disabled")
	}

	devices := usecase.NewDeviceUsecase(deviceRepo, usecase.DefaultRiskWeights)
	sessions := usecase.NewSessionUsecase(sessionRepo, cfg.Session, &logger)
	authUsecase := usecase.NewAuthUsecase(
		userRepo, devices, sessions, engine, securityMailer, cfg.Security, &logger,
	)

	hub := realtime.NewHub(&logger)
	gateway := realtime.NewGateway(hub, authUsecase, sessions, devices, cfg.Realtime, &logger)
	sessions.SetNotifier(gateway)
	authUsecase.SetNotifier(gateway)

	go runSweeper(ctx, sessions, revokedRepo, cfg.Session.SweepInterval, &logger)

	authHandler := handler.NewAuthHandler(authUsecase, sessions, devices, validator, cfg.Cookie, &logger)
	wsServer := realtime.NewWSServer(gateway, cfg.Cookie, cfg.Realtime, &logger)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Mount("/api/v1/auth", authHandler.Routes())
	router.Handle("/ws", wsServer)

	server := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("address", cfg.ServerAddress).Msg("auth service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// runSweeper periodically advances idle sessions toward expiry and purges
// dead revocation records.
func runSweeper(
	ctx context.Context,
	sessions usecase.SessionUsecase,
	revoked repository.RevokedTokenRepository,
	interval time.Duration,
	logger *zerolog.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if warned, err := sessions.SweepIdleSessions(ctx); err != nil {
				logger.Error().Err(err).Msg("idle sweep failed")
			} else if warned > 0 {
				logger.Info().Int("sessions", warned).Msg("idle warnings issued")
			}

			if expired, err := sessions.CleanupExpiredSessions(ctx); err != nil {
				logger.Error().Err(err).Msg("expiry sweep failed")
			} else if expired > 0 {
				logger.Info().Int64("sessions", expired).Msg("sessions expired")
			}

			if _, err := revoked.PurgeExpired(ctx, time.Now()); err != nil {
				logger.Error().Err(err).Msg("revoked token purge failed")
			}
		}
	}
}
