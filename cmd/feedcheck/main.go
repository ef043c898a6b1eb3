package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/Amahseyn/car-dealer-gateway/internal/business/feed"
	"github.com/Amahseyn/car-dealer-gateway/internal/platform/config"
	"github.com/Amahseyn/car-dealer-gateway/internal/platform/dealerapi"
	"github.com/Amahseyn/car-dealer-gateway/internal/repository"
	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
)

// feedcheck runs the aggregation pipeline once against the configured
// upstream and prints what the public feed would contain.
func main() {
	_ = godotenv.Load(".env.local", ".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	session, err := dealerapi.NewSession(repository.NewTokenRepository(cfg.TokenFile))
	if err != nil {
		log.Fatalf("session init: %v", err)
	}

	client, err := dealerapi.New(nil, session, dealerapi.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.FetchTimeout,
	})
	if err != nil {
		log.Fatalf("api client init: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.FetchTimeout)
	defer cancel()

	fmt.Printf("=== Feed check against %s ===\n\n", cfg.APIBaseURL)

	service := feed.NewService(client)
	started := time.Now()
	snap, err := service.Refresh(ctx, feed.ViewPublic, 0)
	if err != nil {
		log.Fatalf("refresh public feed: %v", err)
	}
	elapsed := time.Since(started)

	counts := make(map[model.ListingType]int)
	for _, it := range snap.Items {
		counts[it.Type]++
	}

	for _, t := range model.AllListingTypes {
		fmt.Printf("%-12s (%s): %d listings\n", t, t.Label(), counts[t])
	}
	for section, msg := range snap.SectionErrors() {
		fmt.Printf("%-12s FAILED: %s\n", section, msg)
	}

	fmt.Printf("\nTotal: %d listings in %s\n", len(snap.Items), elapsed.Round(time.Millisecond))
	fmt.Printf("Version: %s\n", snap.Version)

	if len(snap.Items) == 0 {
		return
	}

	fmt.Println("\nNewest 5:")
	for i, it := range snap.Items {
		if i == 5 {
			break
		}
		fmt.Printf("  [%s] #%d %q created %s validated=%v\n",
			it.Type, it.ID, it.Title, it.CreatedAt.Format(time.RFC3339), it.IsValidated)
	}

	// Ordering sanity: createdAt must never increase down the feed.
	for i := 1; i < len(snap.Items); i++ {
		if snap.Items[i].CreatedAt.After(snap.Items[i-1].CreatedAt) {
			log.Fatalf("ordering violation at position %d: %s after %s",
				i, snap.Items[i].CreatedAt, snap.Items[i-1].CreatedAt)
		}
	}
	fmt.Println("\nOrdering check passed")
}
