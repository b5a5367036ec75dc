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

	"coldcall-platform/internal/audit"
	"coldcall-platform/internal/auth"
	"coldcall-platform/internal/config"
	"coldcall-platform/internal/followup"
	"coldcall-platform/internal/httpapi"
	"coldcall-platform/internal/metrics"
	"coldcall-platform/internal/notes"
	"coldcall-platform/internal/session"
	"coldcall-platform/internal/store"
	"coldcall-platform/internal/telephony"
	"coldcall-platform/pkg/logger"
	"coldcall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, utils.PostgresConfig{DSN: cfg.PostgresDSN()})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.EnsureSchema(rootCtx, db); err != nil {
		log.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	m := metrics.New()
	gw := store.NewResilient(store.NewPostgres(db), store.ResilientOptions{Logger: log})
	sessions := session.NewManager(gw, session.ManagerOptions{
		Session: session.Options{
			FollowUp: followup.Options{
				ResetAfter:         cfg.Session.FollowUpReset,
				CalendarIntegrated: cfg.Session.CalendarIntegration,
				CalendarDelay:      cfg.Session.CalendarDelay,
			},
			Notes: notes.Options{
				Debounce: cfg.Session.NotesDebounce,
				AckFor:   cfg.Session.NotesAck,
			},
			Strict:         cfg.Session.StrictOutcomes,
			PersistTimeout: cfg.Session.PersistTimeout,
		},
		Snapshots: store.NewRedisSnapshots(rdb, cfg.Session.SnapshotTTL),
		Logger:    log,
		Metrics:   m,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(m.GinMiddleware())

	registerRoutes(r, routeDeps{
		authMW:  auth.RequireAccessToken(verifier),
		metrics: m,
		health: func(ctx context.Context) error {
			if err := utils.Ping(ctx, db, 2*time.Second); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
		webhook: telephony.StatusWebhookHandler{
			Sessions:      sessions,
			AuthToken:     cfg.Twilio.AuthToken,
			PublicBaseURL: cfg.Twilio.PublicBaseURL,
		},
		api: httpapi.Handlers{
			Sessions: sessions,
			Locks:    httpapi.NewRedisLocker(rdb),
			LockTTL:  cfg.Session.ActionLockTTL,
			Audit:    audit.NewService(audit.NewPostgresRepo(db)),
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	// Flush note drafts and queued writes; snapshots stay for the next process.
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		log.Error("session shutdown failed", "err", err)
	}
}
