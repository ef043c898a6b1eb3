package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
)

// ErrNoTokens signals that no session has been persisted yet.
var ErrNoTokens = errors.New("no stored tokens")

// TokenRepository persists the session token pair to a local JSON file.
// The two fixed keys mirror the names the tokens are stored under in the
// browser client this gateway replaces.
type TokenRepository struct {
	path string
}

func NewTokenRepository(path string) *TokenRepository {
	return &TokenRepository{path: path}
}

type tokenFile struct {
	Access  string `json:"accessToken"`
	Refresh string `json:"refreshToken"`
}

// Load reads the persisted token pair. Returns ErrNoTokens when the file
// does not exist or holds no access token.
func (r *TokenRepository) Load() (model.TokenPair, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.TokenPair{}, ErrNoTokens
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("read token file: %w", err)
	}
	var f tokenFile
	if err := json.Unmarshal(data, &f); err != nil {
		return model.TokenPair{}, fmt.Errorf("decode token file: %w", err)
	}
	if f.Access == "" {
		return model.TokenPair{}, ErrNoTokens
	}
	return model.TokenPair{Access: f.Access, Refresh: f.Refresh}, nil
}

// Save writes the token pair, creating parent directories as needed.
func (r *TokenRepository) Save(pair model.TokenPair) error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(tokenFile{Access: pair.Access, Refresh: pair.Refresh}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Clear removes the persisted pair. Clearing an absent file is not an error.
func (r *TokenRepository) Clear() error {
	err := os.Remove(r.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
