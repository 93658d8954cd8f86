package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/factorly/marketplace/internal/config"
	"github.com/factorly/marketplace/internal/document"
	"github.com/factorly/marketplace/internal/handler"
	"github.com/factorly/marketplace/internal/ledger"
	"github.com/factorly/marketplace/internal/logging"
	"github.com/factorly/marketplace/internal/middleware"
	"github.com/factorly/marketplace/internal/repository"
	"github.com/factorly/marketplace/internal/service"
	"github.com/factorly/marketplace/internal/service/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("factorly-api", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	docs, err := document.NewStore(cfg.DocumentDir)
	if err != nil {
		slog.Error("failed to init document store", "error", err)
		os.Exit(1)
	}

	issuerRepo := repository.NewIssuerRepository(db)
	investorRepo := repository.NewInvestorRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	bidRepo := repository.NewBidRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	fundsLedger := ledger.New(accountRepo, ledgerRepo)
	accountSvc := service.NewAccountService(issuerRepo, investorRepo, accountRepo, ledgerRepo, db)
	invoiceSvc := service.NewInvoiceService(invoiceRepo, bidRepo, issuerRepo, investorRepo, accountRepo, docs)
	settlementSvc := settlement.NewService(invoiceRepo, bidRepo, accountRepo, fundsLedger, outboxRepo, db)

	notifier := service.NewNotifier(
		outboxRepo,
		&service.LogSink{Logger: logger},
		logger,
		time.Duration(cfg.NotifierIntervalS)*time.Second,
		cfg.NotifierBatchSize,
		cfg.NotifierMaxAttempts,
	)
	notifierCtx, stopNotifier := context.WithCancel(context.Background())
	go notifier.Start(notifierCtx)

	healthHandler := handler.NewHealthHandler(db)
	issuerHandler := handler.NewIssuerHandler(accountSvc, invoiceSvc)
	investorHandler := handler.NewInvestorHandler(accountSvc)
	invoiceHandler := handler.NewInvoiceHandler(invoiceSvc, settlementSvc)
	ledgerHandler := handler.NewLedgerHandler(accountSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.HandleFunc("POST /api/v1/issuers", issuerHandler.Register)
	mux.HandleFunc("GET /api/v1/issuers/{id}", issuerHandler.Get)
	mux.HandleFunc("GET /api/v1/issuers/{id}/ledger", ledgerHandler.IssuerStatement)

	mux.HandleFunc("POST /api/v1/investors", investorHandler.Register)
	mux.HandleFunc("GET /api/v1/investors", investorHandler.List)
	mux.HandleFunc("GET /api/v1/investors/{id}", investorHandler.Get)
	mux.HandleFunc("GET /api/v1/investors/{id}/ledger", ledgerHandler.InvestorStatement)

	mux.HandleFunc("POST /api/v1/invoices", invoiceHandler.Create)
	mux.HandleFunc("GET /api/v1/invoices/{id}", invoiceHandler.Get)
	mux.HandleFunc("POST /api/v1/invoices/{id}/bids", invoiceHandler.PlaceBid)
	mux.HandleFunc("POST /api/v1/invoices/{id}/trades", invoiceHandler.ResolveTrade)

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	stopNotifier()
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeS) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second)

	for i := range 30 {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
