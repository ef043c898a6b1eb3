package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/Amahseyn/car-dealer-gateway/internal/platform/config"
	"github.com/Amahseyn/car-dealer-gateway/internal/platform/dealerapi"
	"github.com/Amahseyn/car-dealer-gateway/internal/repository"
)

// login obtains a token pair from the upstream API and persists it to the
// configured token file, so the server starts with a live session.
func main() {
	phone := flag.String("phone", "", "account phone number")
	password := flag.String("password", "", "account password")
	logout := flag.Bool("logout", false, "revoke the stored session instead of logging in")
	flag.Parse()

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *logout {
		if err := client.Logout(ctx); err != nil {
			log.Fatalf("logout: %v", err)
		}
		fmt.Printf("Session cleared from %s\n", cfg.TokenFile)
		return
	}

	if *phone == "" || *password == "" {
		log.Fatal("both -phone and -password are required")
	}

	user, err := client.Login(ctx, *phone, *password)
	if err != nil {
		log.Fatalf("login: %v", err)
	}

	fmt.Printf("Logged in as %s %s (#%d)\n", user.FirstName, user.LastName, user.ID)
	fmt.Printf("Staff: %v\n", user.IsStaff)
	fmt.Printf("Tokens saved to %s\n", cfg.TokenFile)
}
