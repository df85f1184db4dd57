package authapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	auditstore "github.com/dalemusser/stratawiki/internal/app/store/audit"
	"github.com/dalemusser/stratawiki/internal/app/store/sessions"
	userstore "github.com/dalemusser/stratawiki/internal/app/store/users"
	"github.com/dalemusser/stratawiki/internal/app/system/auditlog"
	"github.com/dalemusser/stratawiki/internal/app/system/auth"
	"github.com/dalemusser/stratawiki/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testKey    = "authapi-test-signing-key-32-chars!"
	brokerKey  = "broker-secret"
	externalID = "discord:1001"
)

type fixture struct {
	router http.Handler
	audit  *auditstore.Store
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	codec, err := auth.NewTokenCodec(testKey, time.Hour, false, logger)
	if err != nil {
		t.Fatal(err)
	}
	svc := auth.NewService(codec, userstore.New(db), sessions.New(db), auth.Config{}, logger)

	hash, err := bcrypt.GenerateFromPassword([]byte(brokerKey), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	audits := auditstore.New(db)
	al := auditlog.New(audits, logger, auditlog.Config{Auth: auditlog.PolicyDB})

	r := chi.NewRouter()
	r.Use(svc.LoadSessionUser)
	r.Mount("/api/auth", Routes(NewHandler(svc, al, logger), string(hash), logger))
	return fixture{router: r, audit: audits}
}

func (f fixture) do(req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f fixture) login(t *testing.T) sessionResponse {
	t.Helper()
	req := testutil.NewJSONRequest(http.MethodPost, "/api/auth/session", map[string]string{
		"external_id":  externalID,
		"display_name": "Ada",
		"ip":           "203.0.113.9",
	})
	req.Header.Set(auth.BrokerKeyHeader, brokerKey)
	rec := f.do(req)
	rec.AssertStatus(t, http.StatusCreated)

	var out sessionResponse
	rec.DecodeJSON(t, &out)
	return out
}

func bearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestIssueSession(t *testing.T) {
	f := setup(t)
	out := f.login(t)

	if out.Token == "" {
		t.Fatal("empty token")
	}
	if out.User.ExternalID != externalID || out.User.Role != "viewer" {
		t.Errorf("user = %+v", out.User)
	}
	if out.User.LastLoginIP != "203.0.113.9" {
		t.Errorf("LastLoginIP = %q", out.User.LastLoginIP)
	}
	if !out.ExpiresAt.After(time.Now()) {
		t.Errorf("ExpiresAt = %v", out.ExpiresAt)
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	n, _ := f.audit.CountByFilter(ctx, auditstore.QueryFilter{EventType: auditstore.EventSessionIssued})
	if n != 1 {
		t.Errorf("session_issued audit events = %d, want 1", n)
	}
}

func TestIssueSession_Rejections(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name     string
		key      string
		body     any
		wantCode int
		wantKind string
	}{
		{"no broker key", "", map[string]string{"external_id": "x"}, http.StatusUnauthorized, "unauthenticated"},
		{"wrong broker key", "nope", map[string]string{"external_id": "x"}, http.StatusUnauthorized, "unauthenticated"},
		{"missing external id", brokerKey, map[string]string{"display_name": "x"}, http.StatusBadRequest, "validation"},
		{"bad ip", brokerKey, map[string]string{"external_id": "x", "ip": "not-an-ip"}, http.StatusBadRequest, "validation"},
		{"unknown field", brokerKey, map[string]string{"external_id": "x", "role": "admin"}, http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.NewJSONRequest(http.MethodPost, "/api/auth/session", tt.body)
			if tt.key != "" {
				req.Header.Set(auth.BrokerKeyHeader, tt.key)
			}
			rec := f.do(req)
			rec.AssertStatus(t, tt.wantCode)
			rec.AssertErrorCode(t, tt.wantKind)
		})
	}
}

func TestMe(t *testing.T) {
	f := setup(t)
	out := f.login(t)

	rec := f.do(bearer(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), out.Token))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, externalID)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	rec.AssertStatus(t, http.StatusUnauthorized)

	rec = f.do(bearer(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), "garbage"))
	rec.AssertStatus(t, http.StatusUnauthorized)
	rec.AssertErrorCode(t, "unauthenticated")
}

func TestSessions(t *testing.T) {
	f := setup(t)
	a := f.login(t)
	b := f.login(t)

	rec := f.do(bearer(httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil), b.Token))
	rec.AssertStatus(t, http.StatusOK)

	var body struct {
		Sessions []struct {
			ID        string `json:"id"`
			IPAddress string `json:"ip_address"`
			Current   bool   `json:"current"`
		} `json:"sessions"`
	}
	rec.DecodeJSON(t, &body)
	if len(body.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(body.Sessions))
	}
	current := 0
	for _, s := range body.Sessions {
		if s.Current {
			current++
		}
	}
	if current != 1 {
		t.Errorf("current sessions = %d, want 1", current)
	}
	if strings.Contains(rec.Body.String(), a.Token) || strings.Contains(rec.Body.String(), `"token"`) {
		t.Error("session list exposes tokens")
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil))
	rec.AssertStatus(t, http.StatusUnauthorized)
}

func TestLogout(t *testing.T) {
	f := setup(t)
	out := f.login(t)
	other := f.login(t)

	rec := f.do(bearer(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), out.Token))
	rec.AssertStatus(t, http.StatusNoContent)

	// The revoked token is now rejected; the second session still works.
	rec = f.do(bearer(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), out.Token))
	rec.AssertStatus(t, http.StatusUnauthorized)
	rec = f.do(bearer(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), other.Token))
	rec.AssertStatus(t, http.StatusOK)
}

func TestLogoutAll(t *testing.T) {
	f := setup(t)
	a := f.login(t)
	b := f.login(t)

	rec := f.do(bearer(httptest.NewRequest(http.MethodPost, "/api/auth/logout-all", nil), a.Token))
	rec.AssertStatus(t, http.StatusOK)
	var body map[string]int64
	rec.DecodeJSON(t, &body)
	if body["revoked"] != 2 {
		t.Errorf("revoked = %d, want 2", body["revoked"])
	}

	rec = f.do(bearer(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), b.Token))
	rec.AssertStatus(t, http.StatusUnauthorized)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	n, _ := f.audit.CountByFilter(ctx, auditstore.QueryFilter{Category: auditstore.CategoryAuth, EventType: auditstore.EventSessionsRevokedAll})
	if n != 1 {
		t.Errorf("sessions_revoked_all events = %d", n)
	}
}
