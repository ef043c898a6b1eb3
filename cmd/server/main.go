package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Amahseyn/car-dealer-gateway/internal/business/feed"
	"github.com/Amahseyn/car-dealer-gateway/internal/platform/config"
	"github.com/Amahseyn/car-dealer-gateway/internal/platform/dealerapi"
	apirouter "github.com/Amahseyn/car-dealer-gateway/internal/platform/http"
	"github.com/Amahseyn/car-dealer-gateway/internal/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load(".env.local", ".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	gin.SetMode(cfg.GinMode)

	tokenRepo := repository.NewTokenRepository(cfg.TokenFile)
	session, err := dealerapi.NewSession(tokenRepo)
	if err != nil {
		log.Fatalf("session init: %v", err)
	}
	if session.LoggedIn() {
		log.Printf("restored session from %s", cfg.TokenFile)
	}

	client, err := dealerapi.New(nil, session, dealerapi.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.FetchTimeout,
	})
	if err != nil {
		log.Fatalf("api client init: %v", err)
	}

	choicesCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	choices, err := client.Choices(choicesCtx)
	cancel()
	if err != nil {
		log.Fatalf("fetch choices from %s: %v", cfg.APIBaseURL, err)
	}
	log.Printf("loaded %d advertisement types from upstream", len(choices.AdvertisementTypes))

	feedService := feed.NewService(client)

	router := apirouter.NewRouter(client, feedService, choices, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	log.Printf("server listening on :%s", cfg.Port)

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Println("server exited")
}
