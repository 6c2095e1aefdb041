package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"tasksync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

func TestHashAndCheckPassword(t *testing.T) {
	Cost = bcrypt.MinCost
	hash, err := HashPassword("rahasia123")
	require.NoError(t, err)

	u := &models.User{PasswordHash: &hash}
	assert.NoError(t, CheckPassword(u, "rahasia123"))
	assert.ErrorIs(t, CheckPassword(u, "salah"), ErrInvalidCredentials)
	assert.ErrorIs(t, CheckPassword(&models.User{}, "rahasia123"), ErrNoPassword)
}

func TestGoogleExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "auth-code", r.Form.Get("code"))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access",
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		case "/userinfo":
			assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"sub":            "g-123",
				"email":          "ayu@example.com",
				"email_verified": true,
				"name":           "Ayu Lestari",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	g := NewGoogle("client", "secret", "http://localhost/api/auth/google/callback")
	g.cfg.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	g.userInfoURL = srv.URL + "/userinfo"

	ext, err := g.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "google", ext.Provider)
	assert.Equal(t, "g-123", ext.Subject)
	assert.Equal(t, "ayu@example.com", ext.Email)
	assert.True(t, ext.EmailVerified)

	u, err := url.Parse(g.AuthCodeURL("state-1"))
	require.NoError(t, err)
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))
}

func TestGoogleExchangeUserInfoError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"a","token_type":"Bearer"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := NewGoogle("client", "secret", "")
	g.cfg.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}
	g.userInfoURL = srv.URL + "/userinfo"

	_, err := g.Exchange(context.Background(), "code")
	assert.Error(t, err)
}
