package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/anirudhbs/corebank/internal/api"
	"github.com/anirudhbs/corebank/internal/audit"
	"github.com/anirudhbs/corebank/internal/clock"
	"github.com/anirudhbs/corebank/internal/config"
	"github.com/anirudhbs/corebank/internal/domain"
	"github.com/anirudhbs/corebank/internal/eft"
	"github.com/anirudhbs/corebank/internal/idempotency"
	"github.com/anirudhbs/corebank/internal/ledger"
	"github.com/anirudhbs/corebank/internal/notify"
	"github.com/anirudhbs/corebank/internal/qr"
	"github.com/anirudhbs/corebank/internal/store/memory"
	"github.com/anirudhbs/corebank/internal/store/postgres"
)

// backingStore is satisfied by both the in-memory and the postgres store.
type backingStore interface {
	domain.UnitOfWork
	Accounts() domain.AccountRepository
	Transactions() domain.TransactionRepository
	EFTs() domain.EFTRepository
	Beneficiaries() domain.BeneficiaryRepository
	QRRequests() domain.QRRequestRepository
	QRTransactions() domain.QRTransactionRepository
	UPIHandles() domain.UPIHandleRepository
	IdempotencyKeys() domain.IdempotencyRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var db backingStore
	if cfg.DBSource != "" {
		pg, err := postgres.NewStore(cfg.DBSource)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		defer pg.Close()
		db = pg
		log.Printf("Using postgres store")
	} else {
		db = memory.NewStore()
		log.Printf("DB_SOURCE not set, using in-memory store")
	}

	var notifier domain.Notifier
	if cfg.AMQPURL != "" {
		pub, err := notify.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("Unable to connect to RabbitMQ: %v", err)
		}
		defer pub.Close()
		notifier = pub
	}

	clk := clock.RealClock{}
	auditLog := audit.NewLog()

	ledgerSvc := ledger.NewService(db.Accounts(), db.Transactions(), db, clk, auditLog)
	eftSvc := eft.NewService(db.EFTs(), db.Beneficiaries(), ledgerSvc, db, clk,
		eft.SimulatedGateway{}, eft.BatchSchedule{Every: cfg.BatchWindow}, notifier)
	qrSvc := qr.NewService(db.QRRequests(), db.QRTransactions(), db.UPIHandles(), ledgerSvc, db, clk, notifier)
	guard := idempotency.NewGuard(db.IdempotencyKeys(), db, clk)

	handler := api.NewHandler(ledgerSvc, eftSvc, qrSvc, guard)
	router := api.NewRouter(handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := eft.NewBatchRunner(eftSvc, cfg.BatchPoll, cfg.BatchLimit)
	runner.Start(ctx)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}
