package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shieldgate/gateway/pkg/crypto"
	"github.com/shieldgate/gateway/pkg/domain/apikey"
	"github.com/shieldgate/gateway/pkg/domain/audit"
	"github.com/shieldgate/gateway/pkg/domain/reputation"
	"github.com/shieldgate/gateway/pkg/domain/shared"
	"github.com/shieldgate/gateway/pkg/domain/user"
	"github.com/shieldgate/gateway/pkg/jwt"
	"github.com/shieldgate/gateway/pkg/logger"
)

// errStoreDown simulates an unreachable collaborator.
var errStoreDown = errors.New("store down")

func noopLogger() *logger.Logger { return logger.NewNop() }

func serveHandler(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// newPipelineRequest builds a request with a pre-attached RequestContext,
// for exercising a single stage in isolation.
func newPipelineRequest(method, target string, rc *RequestContext) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(NewContext(req.Context(), rc))
}

// fakeKeyStore is an in-memory apikey.Repository.
type fakeKeyStore struct {
	mu      sync.Mutex
	keys    map[string]*apikey.APIKey
	listErr error
	blocked []string
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{keys: make(map[string]*apikey.APIKey)}
}

func (s *fakeKeyStore) Create(_ context.Context, k *apikey.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.ID] = k
	return nil
}

func (s *fakeKeyStore) GetByID(_ context.Context, id string) (*apikey.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return k, nil
}

func (s *fakeKeyStore) ListActive(_ context.Context) ([]*apikey.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*apikey.APIKey
	for _, k := range s.keys {
		if k.Active() {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *fakeKeyStore) List(_ context.Context) ([]*apikey.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*apikey.APIKey
	for _, k := range s.keys {
		out = append(out, k)
	}
	return out, nil
}

func (s *fakeKeyStore) UpdateStatus(_ context.Context, id string, status apikey.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return shared.ErrNotFound
	}
	k.Status = status
	if status == apikey.StatusBlocked {
		s.blocked = append(s.blocked, id)
	}
	return nil
}

// fakeUserStore is an in-memory user.Repository.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*user.User)}
}

func (s *fakeUserStore) Create(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

// fakeReputationStore is an in-memory reputation.Repository.
type fakeReputationStore struct {
	mu       sync.Mutex
	records  map[string]*reputation.Record
	findErr  error
	countErr error
	upserts  []reputation.Upsert
}

func newFakeReputationStore() *fakeReputationStore {
	return &fakeReputationStore{records: make(map[string]*reputation.Record)}
}

func (s *fakeReputationStore) FindByAddress(_ context.Context, ip string) (*reputation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	r, ok := s.records[ip]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return r, nil
}

func (s *fakeReputationStore) Upsert(_ context.Context, u reputation.Upsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, u)
	now := time.Now()
	s.records[u.IP] = &reputation.Record{
		IP:        u.IP,
		Mode:      u.Mode,
		Blocked:   u.Blocked,
		Reason:    u.Reason,
		Geo:       u.Geo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *fakeReputationStore) CountByMode(_ context.Context, mode reputation.Mode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	count := 0
	for _, r := range s.records {
		if r.Mode == mode {
			count++
		}
	}
	return count, nil
}

func (s *fakeReputationStore) ListBlocked(_ context.Context) ([]*reputation.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*reputation.Record
	for _, r := range s.records {
		if r.Blocked {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeReputationStore) Delete(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[ip]; !ok {
		return shared.ErrNotFound
	}
	delete(s.records, ip)
	return nil
}

func (s *fakeReputationStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts)
}

// fakeAuditStore is an in-memory audit.Repository.
type fakeAuditStore struct {
	mu        sync.Mutex
	events    []*audit.Event
	appendErr error
}

func newFakeAuditStore() *fakeAuditStore {
	return &fakeAuditStore{}
}

func (s *fakeAuditStore) Append(_ context.Context, e *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.events = append(s.events, e)
	return nil
}

func (s *fakeAuditStore) List(_ context.Context, f audit.Filter) ([]*audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.Event
	for _, e := range s.events {
		if f.Type == "" || e.Type == f.Type {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeAuditStore) Stats(_ context.Context) (audit.Totals, error) {
	return audit.Totals{}, nil
}

func (s *fakeAuditStore) TopPaths(_ context.Context, _ int) ([]audit.PathCount, error) {
	return nil, nil
}

func (s *fakeAuditStore) ErrorRates(_ context.Context, _ int) ([]audit.PathCount, error) {
	return nil, nil
}

func (s *fakeAuditStore) TrafficSince(_ context.Context, _ time.Time) ([]audit.MinuteCount, error) {
	return nil, nil
}

func (s *fakeAuditStore) CountByType(_ context.Context, t audit.Type) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.events {
		if e.Type == t {
			count++
		}
	}
	return count, nil
}

func (s *fakeAuditStore) byType(t audit.Type) []*audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// testEnv bundles a fully wired pipeline and its fakes.
type testEnv struct {
	keys        *fakeKeyStore
	users       *fakeUserStore
	reputations *fakeReputationStore
	audits      *fakeAuditStore
	tokens      *jwt.Manager
	pipeline    *Pipeline

	apiKeyPlain string
	apiKeyID    string
	userID      string
}

type envOption func(*envConfig)

type envConfig struct {
	rateLimit RateLimitConfig
	threat    ThreatConfig
	ipFilter  IPFilterConfig
	cache     ResponseCacheConfig
}

func withRateLimit(cfg RateLimitConfig) envOption {
	return func(c *envConfig) { c.rateLimit = cfg }
}

func withThreat(cfg ThreatConfig) envOption {
	return func(c *envConfig) { c.threat = cfg }
}

func withIPFilter(cfg IPFilterConfig) envOption {
	return func(c *envConfig) { c.ipFilter = cfg }
}

// newTestEnv wires the six stages against in-memory fakes, with one seeded
// client API key.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{
		rateLimit: DefaultRateLimitConfig(),
		threat:    DefaultThreatConfig(),
		ipFilter:  DefaultIPFilterConfig(),
		cache:     DefaultResponseCacheConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	keys := newFakeKeyStore()
	users := newFakeUserStore()
	reputations := newFakeReputationStore()
	audits := newFakeAuditStore()
	log := logger.NewNop()
	sink := NewSink(audits, log)

	tokens, err := jwt.NewManager("test-signing-secret", time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		keys:        keys,
		users:       users,
		reputations: reputations,
		audits:      audits,
		tokens:      tokens,
		apiKeyPlain: "sg_test_key_material",
		apiKeyID:    "11111111-1111-1111-1111-111111111111",
		userID:      "22222222-2222-2222-2222-222222222222",
	}

	hash, err := crypto.HashSecret(env.apiKeyPlain)
	require.NoError(t, err)
	require.NoError(t, keys.Create(context.Background(),
		apikey.New(env.apiKeyID, "test-key", hash, env.userID, apikey.RoleClient, 0)))

	env.pipeline = &Pipeline{
		Authenticator: NewAuthenticator(keys, users, tokens, sink, log),
		IPFilter:      NewIPFilter(reputations, sink, cfg.ipFilter, log),
		Threat:        NewThreatDetector(reputations, sink, cfg.threat, log),
		Risk:          NewRiskScorer(nil),
		RateLimiter:   NewRateLimiter(keys, reputations, sink, cfg.rateLimit, log),
		Cache:         NewResponseCache(cfg.cache, log),
	}
	return env
}

// serve runs one request through the full pipeline in front of a trivial
// downstream handler.
func (env *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	return env.serveWith(req, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
}

func (env *testEnv) serveWith(req *http.Request, next http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.pipeline.Handler(next).ServeHTTP(rec, req)
	return rec
}

// authedRequest builds a request carrying the seeded API key from the
// given source address.
func (env *testEnv) authedRequest(method, target, ip string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(HeaderAPIKey, env.apiKeyPlain)
	req.RemoteAddr = ip + ":51234"
	return req
}
