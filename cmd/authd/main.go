// Command authd runs the authentication service: password+MFA login,
// session-anchored token pairs, refresh rotation, and the session
// management API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mercuryim/authd/internal/audit"
	"github.com/mercuryim/authd/internal/config"
	"github.com/mercuryim/authd/internal/db"
	"github.com/mercuryim/authd/internal/directory"
	"github.com/mercuryim/authd/internal/flows"
	"github.com/mercuryim/authd/internal/httpapi"
	"github.com/mercuryim/authd/internal/mail"
	"github.com/mercuryim/authd/internal/metrics"
	"github.com/mercuryim/authd/internal/password"
	"github.com/mercuryim/authd/internal/rate"
	"github.com/mercuryim/authd/internal/session"
	"github.com/mercuryim/authd/internal/stores"
	"github.com/mercuryim/authd/internal/token"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("authd exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		Issuer:        cfg.JWTIssuer,
	})
	if err != nil {
		return err
	}

	hasher, err := password.NewHasher(password.DefaultParams)
	if err != nil {
		return err
	}

	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.AuditBufferSize > 0,
		BufferSize: cfg.AuditBufferSize,
		DropIfFull: true,
	}, audit.NewJSONWriterSink(os.Stdout))
	defer dispatcher.Close()

	var sender mail.Sender
	if cfg.SMTPAddr != "" {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			Host:     cfg.SMTPHost,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		log.Warn("SMTP_ADDR not set, login codes go to the log")
		sender = &mail.LogSender{Log: log}
	}

	sessions := session.NewPostgresStore(pool)
	m := metrics.New()

	svc := flows.New(flows.Deps{
		Directory:    directory.NewPostgresDirectory(pool),
		Hasher:       hasher,
		Codec:        codec,
		Sessions:     sessions,
		Lifecycle:    session.NewLifecycle(sessions, cfg.RefreshTTL, log),
		Security:     session.NewSecurity(codec, sessions, dispatcher, log),
		Challenges:   stores.NewMfaChallengeStore(rdb, "mfa", cfg.MFAChallengeTTL),
		TempSessions: stores.NewTempSessionStore(rdb, "tls", cfg.TempSessionTTL),
		Limiter:      rate.New(rdb),
		Mail:         sender,
		Audit:        dispatcher,
		Metrics:      m,
		Log:          log,
	})

	server := httpapi.NewServer(svc, m, httpapi.Config{
		Production:      cfg.Production(),
		TempSessionTTL:  cfg.TempSessionTTL,
		MFAChallengeTTL: cfg.MFAChallengeTTL,
	}, log)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("authd listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("authd stopped")
	return nil
}
