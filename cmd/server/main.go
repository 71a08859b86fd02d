package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/akovalyov/shop-backend/internal/config"
	"github.com/akovalyov/shop-backend/internal/es"
	"github.com/akovalyov/shop-backend/internal/handlers"
	"github.com/akovalyov/shop-backend/internal/logging"
	"github.com/akovalyov/shop-backend/internal/mykafka"
	"github.com/akovalyov/shop-backend/internal/notify"
	"github.com/akovalyov/shop-backend/internal/payment"
	"github.com/akovalyov/shop-backend/internal/service/checkout"
	"github.com/akovalyov/shop-backend/internal/service/token"
	httpserver "github.com/akovalyov/shop-backend/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	logger := logging.New(os.Getenv("LOG_LEVEL"))

	prod := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})

	esClient, err := es.NewClient(configuration)
	if err != nil {
		log.Fatal(err)
	}

	outboundHTTP := &http.Client{Timeout: configuration.HTTP_TIMEOUT}
	payClient := payment.NewClient(
		configuration.LIQPAY_PUBLIC_KEY,
		configuration.LIQPAY_PRIVATE_KEY,
		configuration.LIQPAY_CALLBACK_URL,
		outboundHTTP,
	)
	notifier := notify.NewTelegram(configuration.TG_BOT_TOKEN, configuration.TG_CHAT_ID, outboundHTTP)

	tokens := &token.Service{
		DB:            db,
		JWTSecret:     []byte(configuration.JWT_SECRET),
		RefreshSecret: []byte(configuration.REFRESH_SECRET),
	}

	checkoutSvc := &checkout.Service{
		DB:       db,
		Notifier: notifier,
		Payments: payClient,
		Producer: prod,
		Log:      logger,
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())

	deps := httpserver.Deps{
		DB:            db,
		AuthHandler:   &handlers.AuthHandler{DB: db, Tokens: tokens, Producer: prod},
		StoreHandler:  &handlers.StoreHandler{DB: db, ES: esClient, ESIndex: "products", Producer: prod},
		OrderHandler:  &handlers.OrderHandler{DB: db, Checkout: checkoutSvc, Payments: payClient, Producer: prod},
		SearchHandler: &handlers.SearchHandler{ES: esClient, Index: "products"},
		Tokens:        tokens,
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
