// Command server runs the dossier platform API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	accounthandler "formalitys/internal/account/handler"
	accountservice "formalitys/internal/account/service"
	accountstore "formalitys/internal/account/store"
	"formalitys/internal/audit"
	dossierhandler "formalitys/internal/dossier/handler"
	dossiermetrics "formalitys/internal/dossier/metrics"
	dossierservice "formalitys/internal/dossier/service"
	dossierstore "formalitys/internal/dossier/store"
	"formalitys/internal/jwttoken"
	"formalitys/internal/ledger"
	"formalitys/internal/payment"
	paymenthandler "formalitys/internal/payment/handler"
	paymentmetrics "formalitys/internal/payment/metrics"
	"formalitys/internal/platform/config"
	"formalitys/internal/platform/httpserver"
	"formalitys/internal/platform/logger"
	platformredis "formalitys/internal/platform/redis"
	"formalitys/internal/transport/http/router"
	"formalitys/pkg/secrets"
)

func main() {
	log := logger.New()
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	var (
		dossiers dossierstore.Store
		users    accountstore.Store
		db       *sql.DB
	)
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		dossiers = dossierstore.NewPostgres(db)
		users = accountstore.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		dossiers = dossierstore.NewInMemory()
		users = accountstore.NewInMemory()
		log.Warn("POSTGRES_DSN not set, using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditStore := audit.NewInMemoryStore()
	var auditPublisher *audit.Publisher
	var auditWorker *audit.Worker
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return err
		}
		defer sink.Close()
		outbox := make(chan audit.Event, 256)
		auditPublisher = audit.NewPublisherWithOutbox(auditStore, outbox)
		auditWorker = audit.NewWorker(sink, outbox)
		log.Info("audit events forwarded to kafka", "topic", cfg.AuditTopic)
	} else {
		auditPublisher = audit.NewPublisher(auditStore)
	}

	tokens := jwttoken.NewService(cfg.JWTSigningKey, "formalitys", "formalitys-api")

	webhookSecret := cfg.WebhookSecret
	if webhookSecret == "" {
		webhookSecret, err = secrets.Generate()
		if err != nil {
			return err
		}
		log.Warn("PAYMENT_WEBHOOK_SECRET not set, generated one for this run", "secret", webhookSecret)
	}

	accountSvc := accountservice.New(users, tokens, accountservice.WithLogger(log))
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := accountSvc.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return err
		}
	}

	dossierSvc := dossierservice.New(dossiers,
		dossierservice.WithLogger(log),
		dossierservice.WithAuditPublisher(auditPublisher),
		dossierservice.WithMetrics(dossiermetrics.New()),
	)
	ledgerSvc := ledger.New(dossiers, ledger.NewInMemoryStorage(),
		ledger.WithLogger(log),
		ledger.WithAuditPublisher(auditPublisher),
	)

	paymentOpts := []payment.Option{
		payment.WithLogger(log),
		payment.WithAuditPublisher(auditPublisher),
		payment.WithMetrics(paymentmetrics.New()),
	}
	if redisClient != nil {
		paymentOpts = append(paymentOpts, payment.WithReferenceIndex(payment.NewRedisIndex(redisClient.Client)))
		log.Info("gateway references indexed in redis")
	}
	paymentSvc := payment.New(dossiers, payment.NewFakeGateway(), paymentOpts...)

	r := router.New(router.Deps{
		Accounts:  accounthandler.New(accountSvc, log),
		Dossiers:  dossierhandler.New(dossierSvc, ledgerSvc, log),
		Payments:  paymenthandler.New(paymentSvc, webhookSecret, log),
		Validator: tokens,
		Logger:    log,
		Health:    healthHandler(db, redisClient),
	})

	server := httpserver.New(cfg.Addr, r)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if auditWorker != nil {
		group.Go(func() error {
			err := auditWorker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func healthHandler(db *sql.DB, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, `{"status":"degraded","postgres":"down"}`, http.StatusServiceUnavailable)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, `{"status":"degraded","redis":"down"}`, http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
