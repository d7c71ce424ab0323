package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jakechorley/crop-planner/internal/config"
)

func TestTokenStore_RoundTrip(t *testing.T) {
	store := &TokenStore{Dir: filepath.Join(t.TempDir(), "tokens")}

	missing, err := store.Load("test")
	require.NoError(t, err)
	assert.Nil(t, missing)

	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save("test", token))

	info, err := os.Stat(filepath.Join(store.Dir, "token-test.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(tokenFilePerms), info.Mode().Perm())

	loaded, err := store.Load("test")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "access", loaded.AccessToken)
	assert.Equal(t, "refresh", loaded.RefreshToken)
	assert.True(t, token.Expiry.Equal(loaded.Expiry))

	// Environments are isolated
	other, err := store.Load("prod")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, store.Delete("test"))
	require.NoError(t, store.Delete("test"))
	gone, err := store.Load("test")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTokenStore_CorruptFile(t *testing.T) {
	store := &TokenStore{Dir: t.TempDir()}
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir, "token-test.json"), []byte("{"), 0600))

	_, err := store.Load("test")
	assert.ErrorContains(t, err, "failed to parse token file")
}

func TestGetOAuthConfig(t *testing.T) {
	cfg := &config.OAuthClientConfig{
		Installed: config.OAuthInstalled{
			ClientID:                "client-id",
			ProjectID:               "project",
			AuthURI:                 "https://accounts.google.com/o/oauth2/auth",
			TokenURI:                "https://oauth2.googleapis.com/token",
			AuthProviderX509CertURL: "https://www.googleapis.com/oauth2/v1/certs",
			ClientSecret:            "secret",
			RedirectURIs:            []string{"http://localhost"},
		},
	}

	oauthConfig, err := GetOAuthConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "client-id", oauthConfig.ClientID)
	assert.Equal(t, []string{ScopeSheets}, oauthConfig.Scopes)
	assert.Equal(t, "http://localhost:3000/oauth/callback", oauthConfig.RedirectURL)
}
