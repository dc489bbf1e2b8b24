// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/openclub/courtbook/internal/booking"
	"github.com/openclub/courtbook/internal/config"
	"github.com/openclub/courtbook/internal/db"
	"github.com/openclub/courtbook/internal/email"
	"github.com/openclub/courtbook/internal/ratelimit"
	"github.com/openclub/courtbook/internal/rules"
	"github.com/openclub/courtbook/internal/scheduler"
	"github.com/openclub/courtbook/internal/store"
)

const shutdownTimeout = 30 * time.Second

func configPath() string {
	if path, ok := os.LookupEnv("CONFIG_PATH"); ok {
		return path
	}
	return "config/app.yaml"
}

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	database, err := db.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	st := store.New(database)

	limiter := ratelimit.New(rateLimitConfig(cfg))
	defer limiter.Close()

	engine, err := rules.New(st, rules.WithAttemptLimiter(limiter))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build rules engine")
	}

	var sender email.EmailSender
	if cfg.Email.Enabled {
		sesClient, err := email.NewSESClient(
			os.Getenv("AWS_ACCESS_KEY_ID"),
			os.Getenv("AWS_SECRET_ACCESS_KEY"),
			cfg.Email.Region,
			cfg.Email.DefaultSender,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize SES client")
		}
		sender = sesClient
	}

	service := booking.New(database, st, engine, limiter, sender)

	if cfg.Scheduler.Enabled {
		if err := startScheduler(st, sender); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
		defer stopScheduler()
	}

	server := newServer(cfg, service, engine, limiter, st)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Run server
	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}

func rateLimitConfig(cfg *config.Config) *ratelimit.Config {
	limits := ratelimit.DefaultConfig()
	if cfg.RateLimit.AttemptCooldownSeconds > 0 {
		limits.AttemptCooldown = cfg.RateLimit.AttemptCooldown()
	}
	if cfg.RateLimit.MaxPerMinute > 0 {
		limits.MaxPerMinute = cfg.RateLimit.MaxPerMinute
	}
	if cfg.RateLimit.MaxPerHour > 0 {
		limits.MaxPerHour = cfg.RateLimit.MaxPerHour
	}
	return limits
}

func startScheduler(st *store.Store, sender email.EmailSender) error {
	if err := scheduler.Init(); err != nil {
		return err
	}
	if err := scheduler.RegisterReminderJob(st, sender); err != nil {
		return err
	}
	if err := scheduler.RegisterStrikeExpiryJob(st); err != nil {
		return err
	}
	svc, err := scheduler.ServiceInstance()
	if err != nil {
		return err
	}
	svc.Start()
	return nil
}

func stopScheduler() {
	svc, err := scheduler.ServiceInstance()
	if err != nil || svc == nil {
		return
	}
	if err := svc.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop scheduler")
	}
}
