package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"templeseva/internal/config"
	"templeseva/internal/database"
	"templeseva/internal/gateway"
	"templeseva/internal/modules/fulfillment"
	"templeseva/internal/modules/payment"
	"templeseva/internal/repository"
)

// One-shot reconciliation sweep for cron setups that prefer an external
// scheduler over the in-process sweeper.
func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	cfg, err := config.LoadPaymentRuntimeConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(databaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	recordRepo := repository.NewPaymentRecordRepository(db)
	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout)
	fulfillSvc := fulfillment.NewService(db, log.Printf)

	svc := payment.NewService(recordRepo, gatewayClient, fulfillSvc, nil, cfg, log.Printf)
	sweeper := payment.NewSweeper(recordRepo, gatewayClient, svc, cfg, log.Printf)

	stats, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		log.Fatalf("sweep failed: %v", err)
	}
	log.Printf("reconciliation completed: scanned=%d resolved=%d abandoned=%d skipped=%d errors=%d",
		stats.Scanned, stats.Resolved, stats.Abandoned, stats.Skipped, stats.Errors)
}
