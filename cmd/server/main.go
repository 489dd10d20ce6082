package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/avelinec/ticket-office/internal/config"
	"github.com/avelinec/ticket-office/internal/database"
	"github.com/avelinec/ticket-office/internal/handler"
	appmw "github.com/avelinec/ticket-office/internal/middleware"
	"github.com/avelinec/ticket-office/internal/payment"
	"github.com/avelinec/ticket-office/internal/queue"
	"github.com/avelinec/ticket-office/internal/repository"
	"github.com/avelinec/ticket-office/internal/router"
	"github.com/avelinec/ticket-office/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	sessions := repository.NewSessionRepo(db)
	purchases := repository.NewPurchaseRepo(db)
	generators := repository.NewGeneratorRepo(db)
	tickets := repository.NewTicketRepo(db)
	users := repository.NewUserRepo(db)

	payments := payment.NewClient(cfg.PaymentAPIURL, cfg.PaymentAPIKey)

	// The mint queue is optional: without a broker URL tickets are still
	// minted, just not announced.
	var publish func(context.Context, queue.TicketMintedEvent) error
	if cfg.AMQPURL != "" {
		publish = queue.PublishTicketMinted
		go func() {
			if err := queue.StartMintConsumer(); err != nil {
				log.Printf("mint-consumer stopped: %v", err)
			}
		}()
	}

	svc := service.NewTicketing(db, sessions, purchases, generators, tickets, payments, publish)

	// Redis backs the rate limiter and the response cache.  A nil client
	// degrades both middlewares to pass-through.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting and caching disabled")
	}
	limit := appmw.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := appmw.NewRedisCache(config.LoadCacheConfig(), rdb)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewPublicHandler(svc), cache)
	router.RegisterOrganizer(e, handler.NewOrganizerHandler(svc), cfg.JWTSecret)
	router.RegisterBuyer(e, handler.NewBuyerHandler(svc), cfg.JWTSecret, limit)
	router.RegisterScanner(e, handler.NewScanHandler(svc), cfg.JWTSecret, limit)
	router.RegisterPayment(e, handler.NewPaymentHandler(svc, cfg.PaymentWebhook))

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
