package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testKey = "this-is-a-32-character-long-key!"

// memStore implements UserStore and SessionStore in memory.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User // by external id
	sessions map[string]*models.Session
	failNext bool
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*models.User{}, sessions: map[string]*models.Session{}}
}

func (m *memStore) RecordLogin(_ context.Context, id models.ExternalIdentity, role models.Role, at time.Time) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id.ExternalID]
	if !ok {
		u = &models.User{ID: primitive.NewObjectID(), ExternalID: id.ExternalID, Role: role, CreatedAt: at}
		m.users[id.ExternalID] = u
	}
	u.DisplayName = id.DisplayName
	u.LastLoginAt = &at
	u.LastLoginIP = id.IP
	cp := *u
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = primitive.NewObjectID()
	cp := *s
	m.sessions[s.Token] = &cp
	return nil
}

func (m *memStore) ResolveUser(_ context.Context, secret string, now time.Time) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return nil, context.DeadlineExceeded
	}
	s, ok := m.sessions[secret]
	if !ok || s.Expired(now) {
		return nil, nil
	}
	for _, u := range m.users {
		if u.ID == s.UserID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) Delete(_ context.Context, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, secret)
	return nil
}

func (m *memStore) DeleteByUser(_ context.Context, userID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListByUser(_ context.Context, userID primitive.ObjectID, now time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Session{}
	for _, s := range m.sessions {
		if s.UserID == userID && !s.Expired(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func newTestService(t *testing.T, cfg Config) (*Service, *memStore) {
	t.Helper()
	codec, err := NewTokenCodec(testKey, time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	store := newMemStore()
	return NewService(codec, store, store, cfg, zap.NewNop()), store
}

func TestNewTokenCodec(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		key        string
		production bool
		wantErr    bool
	}{
		{name: "valid key dev mode", key: testKey, production: false, wantErr: false},
		{name: "valid key prod mode", key: testKey, production: true, wantErr: false},
		{name: "empty key", key: "", production: false, wantErr: true},
		{name: "weak key dev mode", key: "short", production: false, wantErr: false},
		{name: "weak key prod mode", key: "short", production: true, wantErr: true},
		{name: "default key prod mode", key: "dev-only-session-key-not-for-production", production: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewTokenCodec(tt.key, time.Hour, tt.production, logger)
			if tt.wantErr {
				if err == nil {
					t.Error("NewTokenCodec() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("NewTokenCodec() error = %v", err)
			}
			if c == nil {
				t.Error("NewTokenCodec() returned nil")
			}
		})
	}
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	c, _ := NewTokenCodec(testKey, time.Hour, false, zap.NewNop())
	secret, err := NewSecret()
	if err != nil {
		t.Fatalf("NewSecret() error = %v", err)
	}
	token, err := c.Encode(secret)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := c.Decode(token)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != secret {
		t.Errorf("Decode() = %q, want %q", got, secret)
	}
}

func TestTokenCodec_RejectsForeignKey(t *testing.T) {
	c1, _ := NewTokenCodec(testKey, time.Hour, false, zap.NewNop())
	c2, _ := NewTokenCodec("another-32-character-signing-key", time.Hour, false, zap.NewNop())

	token, _ := c1.Encode("secret")
	if _, err := c2.Decode(token); err == nil {
		t.Fatal("Decode() with foreign key should fail")
	}
	if _, err := c1.Decode(token + "x"); err == nil {
		t.Fatal("Decode() of altered token should fail")
	}
	if _, err := c1.Decode("not-a-token"); err == nil {
		t.Fatal("Decode() of garbage should fail")
	}
}

func TestIsDefaultKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"dev-only-key", true},
		{"CHANGE-ME-please", true},
		{"my-password-key", true},
		{"k3x9-random-signing-material-42z", false},
	}
	for _, tt := range tests {
		if got := isDefaultKey(tt.key); got != tt.want {
			t.Errorf("isDefaultKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestService_IssueAndResolve(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	issued, err := svc.IssueSession(ctx, models.ExternalIdentity{ExternalID: "discord:1", DisplayName: "Ada", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}
	if issued.User.Role != models.RoleViewer {
		t.Errorf("new user role = %q, want viewer", issued.User.Role)
	}
	if !issued.ExpiresAt.After(time.Now()) {
		t.Errorf("ExpiresAt = %v, want future", issued.ExpiresAt)
	}

	su, err := svc.Resolve(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if su.ID != issued.User.ID {
		t.Errorf("Resolve() user = %v, want %v", su.ID, issued.User.ID)
	}
	if su.Token != issued.Token {
		t.Error("Resolve() should carry the token")
	}
}

func TestService_InitialRoleFromConfig(t *testing.T) {
	svc, _ := newTestService(t, Config{
		AdminExternalIDs:  []string{" discord:admin "},
		EditorExternalIDs: []string{"discord:editor"},
	})
	ctx := context.Background()

	tests := []struct {
		externalID string
		want       models.Role
	}{
		{"discord:admin", models.RoleAdmin},
		{"discord:editor", models.RoleEditor},
		{"discord:someone", models.RoleViewer},
	}
	for _, tt := range tests {
		issued, err := svc.IssueSession(ctx, models.ExternalIdentity{ExternalID: tt.externalID, DisplayName: "x"})
		if err != nil {
			t.Fatalf("IssueSession(%q) error = %v", tt.externalID, err)
		}
		if issued.User.Role != tt.want {
			t.Errorf("IssueSession(%q) role = %q, want %q", tt.externalID, issued.User.Role, tt.want)
		}
	}
}

func TestService_IssueSession_RequiresExternalID(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	_, err := svc.IssueSession(context.Background(), models.ExternalIdentity{ExternalID: "  "})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("IssueSession() kind = %v, want validation", apperr.KindOf(err))
	}
}

func TestService_ResolveFailuresAreUniform(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	issued, _ := svc.IssueSession(ctx, models.ExternalIdentity{ExternalID: "discord:1", DisplayName: "Ada"})
	unknown, _ := svc.codec.Encode("never-issued")

	expiredSvc := *svc
	expiredSvc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	cases := map[string]func() error{
		"empty":     func() error { _, err := svc.Resolve(ctx, ""); return err },
		"malformed": func() error { _, err := svc.Resolve(ctx, "garbage"); return err },
		"unknown":   func() error { _, err := svc.Resolve(ctx, unknown); return err },
		"expired":   func() error { _, err := expiredSvc.Resolve(ctx, issued.Token); return err },
	}
	for name, fn := range cases {
		err := fn()
		if err != apperr.ErrUnauthenticated {
			t.Errorf("%s: Resolve() error = %v, want the shared unauthenticated error", name, err)
		}
	}
}

func TestService_Revoke(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	issued, _ := svc.IssueSession(ctx, models.ExternalIdentity{ExternalID: "discord:1", DisplayName: "Ada"})

	if err := svc.Revoke(ctx, issued.Token); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := svc.Revoke(ctx, issued.Token); err != nil {
		t.Fatalf("second Revoke() error = %v", err)
	}
	if err := svc.Revoke(ctx, "garbage"); err != nil {
		t.Fatalf("Revoke(malformed) error = %v", err)
	}
	if _, err := svc.Resolve(ctx, issued.Token); !isUnauthenticated(err) {
		t.Fatalf("Resolve() after revoke error = %v, want unauthenticated", err)
	}
}

func TestService_RevokeAll(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	a, _ := svc.IssueSession(ctx, models.ExternalIdentity{ExternalID: "discord:1", DisplayName: "Ada"})
	b, _ := svc.IssueSession(ctx, models.ExternalIdentity{ExternalID: "discord:1", DisplayName: "Ada"})
	other, _ := svc.IssueSession(ctx, models.ExternalIdentity{ExternalID: "discord:2", DisplayName: "Bob"})

	n, err := svc.RevokeAll(ctx, a.User.ID)
	if err != nil {
		t.Fatalf("RevokeAll() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RevokeAll() = %d, want 2", n)
	}
	for _, tok := range []string{a.Token, b.Token} {
		if _, err := svc.Resolve(ctx, tok); !isUnauthenticated(err) {
			t.Errorf("Resolve() after RevokeAll error = %v, want unauthenticated", err)
		}
	}
	if _, err := svc.Resolve(ctx, other.Token); err != nil {
		t.Errorf("other user's session should survive, got %v", err)
	}
}

func TestService_Sessions(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	a, _ := svc.IssueSession(ctx, models.ExternalIdentity{ExternalID: "discord:1", DisplayName: "Ada"})
	b, _ := svc.IssueSession(ctx, models.ExternalIdentity{ExternalID: "discord:1", DisplayName: "Ada"})
	_, _ = svc.IssueSession(ctx, models.ExternalIdentity{ExternalID: "discord:2", DisplayName: "Bob"})

	list, err := svc.Sessions(ctx, a.User.ID, b.Token)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Sessions() = %d entries, want 2", len(list))
	}
	current := 0
	for _, s := range list {
		if s.UserID != a.User.ID {
			t.Errorf("session of user %v listed", s.UserID)
		}
		if s.Current {
			current++
			if s.ID != b.Session.ID {
				t.Errorf("current = %v, want %v", s.ID, b.Session.ID)
			}
		}
	}
	if current != 1 {
		t.Errorf("current sessions = %d, want 1", current)
	}

	list, _ = svc.Sessions(ctx, a.User.ID, "garbage")
	for _, s := range list {
		if s.Current {
			t.Error("malformed token marked a session current")
		}
	}
}

func TestLoadSessionUser(t *testing.T) {
	svc, store := newTestService(t, Config{})
	issued, _ := svc.IssueSession(context.Background(), models.ExternalIdentity{ExternalID: "discord:1", DisplayName: "Ada"})

	var seen *SessionUser
	h := svc.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CurrentUser(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		failStore  bool
		wantStatus int
		wantUser   bool
	}{
		{name: "anonymous", header: "", wantStatus: http.StatusNoContent},
		{name: "valid token", header: "Bearer " + issued.Token, wantStatus: http.StatusNoContent, wantUser: true},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer garbage", wantStatus: http.StatusUnauthorized},
		{name: "store failure", header: "Bearer " + issued.Token, failStore: true, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			store.failNext = tt.failStore
			req := httptest.NewRequest(http.MethodGet, "/api/pages", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if (seen != nil) != tt.wantUser {
				t.Errorf("user in context = %v, want %v", seen != nil, tt.wantUser)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				var body map[string]string
				_ = json.Unmarshal(rec.Body.Bytes(), &body)
				if body["code"] != "unauthenticated" {
					t.Errorf("code = %q, want unauthenticated", body["code"])
				}
			}
		})
	}
}

func TestRequireSignedIn(t *testing.T) {
	h := RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}

	req := WithTestUser(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil),
		&SessionUser{User: models.User{ID: primitive.NewObjectID(), Role: models.RoleViewer}})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("signed-in status = %d, want 200", rec.Code)
	}
}

func TestCurrentModelUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if CurrentModelUser(req) != nil {
		t.Error("CurrentModelUser() should be nil for anonymous request")
	}
	id := primitive.NewObjectID()
	req = WithTestUser(req, &SessionUser{User: models.User{ID: id, Role: models.RoleAdmin}})
	if u := CurrentModelUser(req); u == nil || u.ID != id {
		t.Errorf("CurrentModelUser() = %v, want user %v", u, id)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Token abc", "", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBrokerKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("broker-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		hash       string
		key        string
		wantStatus int
	}{
		{name: "valid key", hash: string(hash), key: "broker-secret", wantStatus: http.StatusOK},
		{name: "wrong key", hash: string(hash), key: "nope", wantStatus: http.StatusUnauthorized},
		{name: "missing key", hash: string(hash), key: "", wantStatus: http.StatusUnauthorized},
		{name: "not configured", hash: "", key: "broker-secret", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := BrokerKeyAuth(tt.hash, zap.NewNop())(ok)
			req := httptest.NewRequest(http.MethodPost, "/api/auth/session", nil)
			if tt.key != "" {
				req.Header.Set(BrokerKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func isUnauthenticated(err error) bool {
	return apperr.KindOf(err) == apperr.KindUnauthenticated
}
