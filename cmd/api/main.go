package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasksync/configs"
	"tasksync/internal/api"
	"tasksync/internal/auth"
	"tasksync/internal/config"
	"tasksync/internal/mail"
	"tasksync/internal/otp"
	"tasksync/internal/repository"
	"tasksync/internal/repository/memory"
	"tasksync/internal/session"
	myws "tasksync/internal/websocket"
	"tasksync/pkg/database"
	"tasksync/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		logger.ErrorLogger.Error("Application stopped", zap.Error(err))
		logger.SyncLoggers()
		log.Fatal(err)
	}
}

func run() error {
	// Load config
	cfg := configs.LoadConfig()

	// Inisialisasi logger
	if err := logger.InitLoggers(cfg.LogDir); err != nil {
		return err
	}
	defer logger.SyncLoggers()
	logger.SystemLogger.Info("Starting application", zap.String("time", time.Now().Format(time.RFC3339)))

	if err := cfg.CheckSessionSecret(); err != nil {
		return err
	}
	if cfg.DefaultSessionSecret() {
		logger.SystemLogger.Warn("SESSION_SECRET is not set, using the development default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ----- Inisialisasi repository ----- //
	var store repository.Store
	switch cfg.Storage {
	case configs.StorageMemory:
		store = memory.New()
		logger.SystemLogger.Warn("Using in-memory storage, data is lost on restart")
	case configs.StoragePostgres:
		db, err := database.ConnectDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.SystemLogger.Info("Database Connected")

		if err := repository.Migrate(ctx, db.DB); err != nil {
			return err
		}
		store = repository.NewPostgres(db)
	default:
		return fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		created, err := repository.CreateAdminUser(ctx, store, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if created {
			logger.SystemLogger.Info("Admin user created", zap.String("email", cfg.AdminEmail))
		}
	}

	// OTP disimpan di Redis bila tersedia
	var otpStore otp.Store = otp.NewMemoryStore()
	redisClient, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		otpStore = otp.NewRedisStore(redisClient)
		logger.SystemLogger.Info("Redis Connected")
	}

	var sender mail.Sender = mail.LogSender{}
	if cfg.SMTPEnabled() {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.MailFrom,
		})
	}

	// hub berhenti setelah server selesai shutdown
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := myws.NewHub()
	go hub.Run(hubCtx)

	deps := &config.Dependencies{
		Config:  cfg,
		Store:   store,
		Issuer:  session.NewIssuer([]byte(cfg.SessionSecret), cfg.SessionTTL, session.DefaultRenewAfter),
		Deriver: session.NewDeriver(store),
		OTP:     otp.NewService(otpStore, sender, otp.DefaultTTL),
		Hub:     hub,
		Now:     time.Now,
	}
	if cfg.GoogleEnabled() {
		deps.OAuth = auth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	}

	app := api.NewApp(deps)

	errCh := make(chan error, 1)
	go func() {
		logger.SystemLogger.Info("Application ready", zap.Int("port", cfg.AppPort))
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.AppPort))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.SystemLogger.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
