package pluginhost

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"

	"tark/pkg/types"
)

// CredentialStore persists the renewed oauth2.Token for an Auth
// plugin instance at its manifest-declared CredentialsPath.
type CredentialStore struct {
	Path string
}

func (c CredentialStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &tok, nil
}

func (c CredentialStore) Save(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path, data, 0600)
}

// RefreshIfNeeded refreshes the credential at store.Path through the
// Auth plugin instance if it is missing or expires within skew, and
// persists the result.
func RefreshIfNeeded(ctx context.Context, inst *Instance, store CredentialStore, skew time.Duration) (*oauth2.Token, error) {
	authPlugin, ok := inst.Auth()
	if !ok {
		return nil, fmt.Errorf("plugin %s does not implement the auth interface", inst.Manifest.ID)
	}

	tok, err := store.Load()
	if err == nil && tok.Valid() && time.Until(tok.Expiry) > skew {
		return tok, nil
	}

	refreshToken := ""
	if tok != nil {
		refreshToken = tok.RefreshToken
	}

	resp, err := authPlugin.Refresh(types.AuthRefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("refresh via plugin %s: %w", inst.Manifest.ID, err)
	}

	newTok := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.ExpiresAt > 0 {
		newTok.Expiry = time.Unix(resp.ExpiresAt, 0)
	}
	if newTok.RefreshToken == "" {
		newTok.RefreshToken = refreshToken
	}

	if err := store.Save(newTok); err != nil {
		return nil, fmt.Errorf("persist refreshed credentials: %w", err)
	}

	return newTok, nil
}
