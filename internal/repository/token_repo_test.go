package repository

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
)

func TestTokenRepositoryLoadMissing(t *testing.T) {
	repo := NewTokenRepository(filepath.Join(t.TempDir(), "tokens.json"))
	if _, err := repo.Load(); !errors.Is(err, ErrNoTokens) {
		t.Fatalf("expected ErrNoTokens for missing file, got %v", err)
	}
}

func TestTokenRepositoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	repo := NewTokenRepository(path)

	pair := model.TokenPair{Access: "acc", Refresh: "ref"}
	if err := repo.Save(pair); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != pair {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, pair)
	}

	// The on-disk keys are fixed names other tooling relies on.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read token file: %v", err)
	}
	var keys map[string]string
	if err := json.Unmarshal(data, &keys); err != nil {
		t.Fatalf("decode token file: %v", err)
	}
	if keys["accessToken"] != "acc" || keys["refreshToken"] != "ref" {
		t.Fatalf("unexpected storage keys: %v", keys)
	}
}

func TestTokenRepositoryClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	repo := NewTokenRepository(path)

	if err := repo.Save(model.TokenPair{Access: "acc", Refresh: "ref"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := repo.Load(); !errors.Is(err, ErrNoTokens) {
		t.Fatalf("expected ErrNoTokens after clear, got %v", err)
	}
	// Clearing an already-empty store is not an error.
	if err := repo.Clear(); err != nil {
		t.Fatalf("Clear twice: %v", err)
	}
}

func TestTokenRepositoryLoadEmptyAccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	if err := os.WriteFile(path, []byte(`{"accessToken":"","refreshToken":"ref"}`), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	repo := NewTokenRepository(path)
	if _, err := repo.Load(); !errors.Is(err, ErrNoTokens) {
		t.Fatalf("expected ErrNoTokens for empty access token, got %v", err)
	}
}
