package bootstrap

import (
	"strings"
	"testing"
	"time"

	pagestore "github.com/dalemusser/stratawiki/internal/app/store/pages"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func validAppConfig() AppConfig {
	return AppConfig{
		MongoURI:          "mongodb://localhost:27017",
		MongoDatabase:     "stratawiki_test",
		SessionKey:        "0123456789abcdef0123456789abcdef",
		SessionTTL:        24 * time.Hour,
		BrokerKeyHash:     "$2a$10$abcdefghijklmnopqrstuv",
		RevisionRetention: pagestore.DeleteRevisions,
		MaxContentBytes:   pagestore.DefaultMaxContentBytes,
		AuditLogAuth:      "all",
		AuditLogAdmin:     "all",
		AuditLogContent:   "db",
		TimeoutRead:       5 * time.Second,
		TimeoutWrite:      10 * time.Second,
		TimeoutBatch:      time.Minute,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", func(*AppConfig) {}, ""},
		{"zero ttl", func(c *AppConfig) { c.SessionTTL = 0 }, "session_ttl"},
		{"unknown retention", func(c *AppConfig) { c.RevisionRetention = "archive" }, "revision_retention"},
		{"zero content bound", func(c *AppConfig) { c.MaxContentBytes = 0 }, "max_content_bytes"},
		{"unknown audit policy", func(c *AppConfig) { c.AuditLogContent = "sometimes" }, "audit_log_content"},
		{"zero write timeout", func(c *AppConfig) { c.TimeoutWrite = 0 }, "timeout_write"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAppConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(nil, cfg, zap.NewNop())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateConfig() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateConfig() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_ReportsEveryProblem(t *testing.T) {
	cfg := validAppConfig()
	cfg.SessionTTL = 0
	cfg.AuditLogAuth = "loud"
	err := ValidateConfig(nil, cfg, zap.NewNop())
	if err == nil {
		t.Fatal("ValidateConfig() = nil, want error")
	}
	for _, want := range []string{"session_ttl", "audit_log_auth"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateConfig_WarnsWithoutBrokerKey(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cfg := validAppConfig()
	cfg.BrokerKeyHash = ""
	if err := ValidateConfig(nil, cfg, zap.New(core)); err != nil {
		t.Fatalf("ValidateConfig() = %v", err)
	}
	if logs.FilterMessageSnippet("broker_key_hash").Len() != 1 {
		t.Errorf("expected one broker_key_hash warning, got %d", logs.Len())
	}
}

func TestStatusConfig(t *testing.T) {
	cfg := validAppConfig()
	cfg.AllowAnonymousRead = true
	got := statusConfig(cfg)
	if got.RevisionRetention != "delete" || !got.AllowAnonymousRead || got.SessionKey != cfg.SessionKey {
		t.Errorf("statusConfig() = %+v", got)
	}
}
