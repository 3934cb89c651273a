package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldgate/gateway/internal/config"
	"github.com/shieldgate/gateway/internal/gateway"
	"github.com/shieldgate/gateway/pkg/crypto"
	"github.com/shieldgate/gateway/pkg/domain/audit"
	"github.com/shieldgate/gateway/pkg/domain/shared"
	"github.com/shieldgate/gateway/pkg/domain/user"
	"github.com/shieldgate/gateway/pkg/jwt"
	"github.com/shieldgate/gateway/pkg/logger"
)

type stubUserStore struct {
	byEmail map[string]*user.User
}

func (s *stubUserStore) Create(ctx context.Context, u *user.User) error { return nil }

func (s *stubUserStore) GetByID(ctx context.Context, id string) (*user.User, error) {
	for _, u := range s.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubUserStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

type stubAuditStore struct {
	events []*audit.Event
}

func (s *stubAuditStore) Append(ctx context.Context, e *audit.Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *stubAuditStore) List(ctx context.Context, f audit.Filter) ([]*audit.Event, error) {
	return s.events, nil
}

func (s *stubAuditStore) Stats(ctx context.Context) (audit.Totals, error) {
	return audit.Totals{}, nil
}

func (s *stubAuditStore) TopPaths(ctx context.Context, limit int) ([]audit.PathCount, error) {
	return nil, nil
}

func (s *stubAuditStore) ErrorRates(ctx context.Context, limit int) ([]audit.PathCount, error) {
	return nil, nil
}

func (s *stubAuditStore) TrafficSince(ctx context.Context, since time.Time) ([]audit.MinuteCount, error) {
	return nil, nil
}

func (s *stubAuditStore) CountByType(ctx context.Context, t audit.Type) (int, error) {
	return 0, nil
}

func newAuthHandler(t *testing.T, users *stubUserStore, audits *stubAuditStore) *AuthHandler {
	t.Helper()

	tokens, err := jwt.NewManager("test-secret-material", time.Hour)
	require.NoError(t, err)

	log := logger.NewNop()
	sink := gateway.NewSink(audits, log)
	cfg := config.AuthConfig{LoginRatePerMinute: 60, LoginBurst: 10}
	return NewAuthHandler(users, tokens, sink, cfg, log)
}

func loginRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:52100"
	return req
}

func TestAuthHandler_Login(t *testing.T) {
	hash, err := crypto.HashSecret("correct-horse-battery")
	require.NoError(t, err)

	users := &stubUserStore{byEmail: map[string]*user.User{
		"admin@example.com": {
			ID:           shared.NewID(),
			Email:        "admin@example.com",
			PasswordHash: hash,
			Role:         user.RoleAdmin,
		},
	}}
	audits := &stubAuditStore{}
	h := newAuthHandler(t, users, audits)

	t.Run("valid credentials issue a token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Login(rec, loginRequest(`{"email":"admin@example.com","password":"correct-horse-battery"}`))

		require.Equal(t, http.StatusOK, rec.Code)

		var resp LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "Bearer", resp.TokenType)
		assert.Equal(t, int64(3600), resp.ExpiresIn)
		assert.Equal(t, user.RoleAdmin, resp.Role)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		wrongPass := httptest.NewRecorder()
		h.Login(wrongPass, loginRequest(`{"email":"admin@example.com","password":"not-the-password"}`))

		unknown := httptest.NewRecorder()
		h.Login(unknown, loginRequest(`{"email":"nobody@example.com","password":"not-the-password"}`))

		assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
		assert.Equal(t, http.StatusUnauthorized, unknown.Code)
		assert.Equal(t, wrongPass.Body.String(), unknown.Body.String())
	})

	t.Run("failed attempts are audited", func(t *testing.T) {
		var failed int
		for _, e := range audits.events {
			if e.Type == audit.TypeAuthFailed {
				failed++
				assert.Equal(t, "203.0.113.7", e.IP)
				assert.Equal(t, audit.LevelMedium, e.RiskLevel)
			}
		}
		assert.Equal(t, 2, failed)
	})
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	h := newAuthHandler(t, &stubUserStore{byEmail: map[string]*user.User{}}, &stubAuditStore{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "malformed json", body: `{"email":`, wantStatus: http.StatusBadRequest},
		{name: "missing email", body: `{"password":"long-enough-pw"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "invalid email", body: `{"email":"nope","password":"long-enough-pw"}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "short password", body: `{"email":"a@b.com","password":"short"}`, wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Login(rec, loginRequest(tt.body))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAuthHandler_LoginThrottle(t *testing.T) {
	hash, err := crypto.HashSecret("correct-horse-battery")
	require.NoError(t, err)

	users := &stubUserStore{byEmail: map[string]*user.User{
		"admin@example.com": {ID: shared.NewID(), Email: "admin@example.com", PasswordHash: hash, Role: user.RoleAdmin},
	}}

	tokens, err := jwt.NewManager("test-secret-material", time.Hour)
	require.NoError(t, err)
	log := logger.NewNop()
	h := NewAuthHandler(users, tokens, gateway.NewSink(&stubAuditStore{}, log),
		config.AuthConfig{LoginRatePerMinute: 1, LoginBurst: 2}, log)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.Login(rec, loginRequest(`{"email":"admin@example.com","password":"correct-horse-battery"}`))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])

	// A different source address gets its own budget.
	req := loginRequest(`{"email":"admin@example.com","password":"correct-horse-battery"}`)
	req.RemoteAddr = "198.51.100.4:40000"
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
