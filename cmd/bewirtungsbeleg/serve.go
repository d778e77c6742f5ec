package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tendant/bewirtungsbeleg/internal/auth"
	"github.com/tendant/bewirtungsbeleg/internal/config"
	httpserver "github.com/tendant/bewirtungsbeleg/internal/http"
	"github.com/tendant/bewirtungsbeleg/internal/notification"
	"github.com/tendant/bewirtungsbeleg/internal/repository"
	"github.com/tendant/bewirtungsbeleg/internal/upstream"
)

// tokenStore is the selected token backend plus its health check and
// cleanup.
type tokenStore struct {
	auth.TokenStore
	ping  func(ctx context.Context) error
	close func() error
}

func openTokenStore(ctx context.Context, cfg *config.Config) (*tokenStore, error) {
	switch cfg.TokenStore {
	case config.StoreRedis:
		client, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		store := repository.NewRedisTokenStore(client)
		return &tokenStore{TokenStore: store, ping: store.Ping, close: client.Close}, nil
	case config.StorePostgres:
		db, err := openDB(cfg)
		if err != nil {
			return nil, err
		}
		return &tokenStore{TokenStore: repository.NewPostgresTokenStore(db), ping: db.PingContext, close: db.Close}, nil
	default:
		return &tokenStore{TokenStore: repository.NewMemoryTokenStore(), close: func() error { return nil }}, nil
	}
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	return repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
}

func newDirectory(cfg *config.Config, logger *slog.Logger) upstream.Directory {
	if !cfg.HasUpstream() {
		logger.Warn("AUTH_SERVER not set, using in-memory account directory")
		return upstream.NewLocalDirectory()
	}
	return upstream.NewDocBitsClient(upstream.DocBitsConfig{
		BaseURL:       cfg.AuthServer,
		AdminUser:     cfg.AdminAuthUser,
		AdminPassword: cfg.AdminAuthPassword,
		Timeout:       cfg.UpstreamTimeout,
	}, logger)
}

func newMailer(cfg *config.Config, logger *slog.Logger) (notification.Mailer, error) {
	if !cfg.HasSMTP() {
		logger.Warn("SMTP not configured, mails are logged only")
		return notification.NewLogMailer(logger), nil
	}
	mailer, err := notification.NewEmailService(notification.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
		TLS:      cfg.SMTP.TLS,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("email service enabled")
	return mailer, nil
}

func serve(ctx context.Context, _ *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	store, err := openTokenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	defer store.close()
	logger.Info("token store ready", "backend", cfg.TokenStore)

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to configure mail: %w", err)
	}
	notifier, err := notification.NewNotifier(mailer)
	if err != nil {
		return fmt.Errorf("failed to load mail templates: %w", err)
	}

	policy := auth.NewPasswordPolicy(cfg.PasswordMinLength)
	policy.RequireLetter = cfg.PasswordRequireLetter
	policy.RequireNumber = cfg.PasswordRequireNumber

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:    logger,
		Tokens:    auth.NewTokenService(store, auth.WithLogger(logger)),
		Directory: newDirectory(cfg, logger),
		Notifier:  notifier,
		Tickets: auth.NewTicketService(auth.TicketConfig{
			Secret: []byte(cfg.TicketSecret),
			TTL:    cfg.TicketTTL,
		}),
		Policy:             policy,
		AppBaseURL:         cfg.AppBaseURL,
		RateLimit:          cfg.RateLimit,
		SecurityHeaders:    cfg.SecurityHeaders,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		Ready:              store.ping,
	})

	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
