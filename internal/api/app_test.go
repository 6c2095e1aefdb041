package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tasksync/configs"
	"tasksync/internal/auth"
	"tasksync/internal/config"
	"tasksync/internal/mail"
	"tasksync/internal/models"
	"tasksync/internal/otp"
	"tasksync/internal/repository/memory"
	"tasksync/internal/session"
	myws "tasksync/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "rahasia123"

// outbox records mail instead of sending it.
type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

// lastCode returns the six digit code of the latest mail to addr.
func (o *outbox) lastCode(t *testing.T, addr string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].To != addr {
			continue
		}
		for _, line := range strings.Split(o.sent[i].Body, "\n") {
			line = strings.TrimSpace(line)
			if len(line) == 6 && strings.Trim(line, "0123456789") == "" {
				return line
			}
		}
	}
	t.Fatalf("no code mailed to %s", addr)
	return ""
}

type testApp struct {
	app   *fiber.App
	deps  *config.Dependencies
	store *memory.Store
	mail  *outbox
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	auth.Cost = bcrypt.MinCost

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := myws.NewHub()
	go hub.Run(ctx)

	store := memory.New()
	box := &outbox{}
	cfg := configs.Config{
		BaseURL:       "http://localhost:3004",
		SessionSecret: "test-secret",
		SessionTTL:    30 * 24 * time.Hour,
	}
	deps := &config.Dependencies{
		Config:  cfg,
		Store:   store,
		Issuer:  session.NewIssuer([]byte(cfg.SessionSecret), cfg.SessionTTL, session.DefaultRenewAfter),
		Deriver: session.NewDeriver(store),
		OTP:     otp.NewService(otp.NewMemoryStore(), box, otp.DefaultTTL),
		Hub:     hub,
		Now:     time.Now,
	}
	return &testApp{app: NewApp(deps), deps: deps, store: store, mail: box}
}

// createUser inserts a verified user directly and returns it with a token.
func (a *testApp) createUser(t *testing.T, name string, role models.Role) (*models.User, string) {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	now := time.Now()
	u := &models.User{
		Name:            name,
		Email:           strings.ToLower(name) + "@example.com",
		PasswordHash:    &hash,
		Provider:        models.ProviderCredentials,
		Role:            role,
		EmailVerifiedAt: &now,
	}
	require.NoError(t, a.store.CreateUser(context.Background(), u))
	token, _, err := a.deps.Issuer.Issue(session.FromUser(u))
	require.NoError(t, err)
	return u, token
}

type envelope struct {
	Message          string            `json:"message"`
	Success          bool              `json:"success"`
	Status           int               `json:"status"`
	Data             json.RawMessage   `json:"data"`
	Errors           map[string]string `json:"errors"`
	MissingAssignees []int64           `json:"missing_assignees"`
}

func (e envelope) decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, v), "data: %s", string(e.Data))
}

type request struct {
	method  string
	path    string
	body    interface{}
	token   string
	cookies []*http.Cookie
}

func (a *testApp) raw(t *testing.T, r request) *http.Response {
	t.Helper()
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}
	resp, err := a.app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func (a *testApp) do(t *testing.T, r request) (*http.Response, envelope) {
	t.Helper()
	resp := a.raw(t, r)
	defer resp.Body.Close()
	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), "body: %s", string(raw))
	}
	return resp, env
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
