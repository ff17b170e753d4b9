package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"templeseva/internal/config"
	"templeseva/internal/database"
	"templeseva/internal/gateway"
	"templeseva/internal/middleware"
	"templeseva/internal/modules/fulfillment"
	"templeseva/internal/modules/payment"
	jwtsvc "templeseva/internal/pkg/jwt"
	"templeseva/internal/repository"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is empty")
	}

	cfg, err := config.LoadPaymentRuntimeConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	recordRepo := repository.NewPaymentRecordRepository(db)
	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout)
	fulfillSvc := fulfillment.NewService(db, log.Printf)
	statusHub := payment.NewStatusHub()

	paymentSvc := payment.NewService(recordRepo, gatewayClient, fulfillSvc, statusHub, cfg, log.Printf)
	webhookProc, err := payment.NewWebhookProcessor(recordRepo, paymentSvc, cfg.WebhookSecret, log.Printf)
	if err != nil {
		log.Fatalf("webhook processor: %v", err)
	}
	paymentHandler := payment.NewHandler(paymentSvc, webhookProc, statusHub, log.Printf)

	sweeper := payment.NewSweeper(recordRepo, gatewayClient, paymentSvc, cfg, log.Printf)
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	stopSweep := sweeper.Start(sweepCtx)
	defer close(stopSweep)

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTAccessTTL)

	r := gin.Default()
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorLogger())

	v1 := r.Group("/api/v1")
	{
		paymentHandler.RegisterPublicRoutes(v1)

		protected := v1.Group("/")
		protected.Use(middleware.Auth(j))
		{
			paymentHandler.RegisterProtectedRoutes(protected)
		}
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	if err := r.Run(addr); err != nil {
		log.Fatal(err)
	}
}
