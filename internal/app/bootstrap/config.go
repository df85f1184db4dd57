// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	pagestore "github.com/dalemusser/stratawiki/internal/app/store/pages"
	"github.com/dalemusser/stratawiki/internal/app/system/auditlog"
	"github.com/dalemusser/stratawiki/internal/app/system/normalize"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATAWIKI"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_ttl, etc.
//   - Environment variables: STRATAWIKI_MONGO_URI, STRATAWIKI_SESSION_TTL, etc.
//   - Command-line flags: --mongo_uri, --session_ttl, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratawiki", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Sessions
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session token signing key (32+ chars in production)"},
	{Name: "session_ttl", Default: "24h", Desc: "Session lifetime (e.g., 24h, 720h)"},
	{Name: "broker_key_hash", Default: "", Desc: "bcrypt hash of the identity broker key (empty disables session issue)"},

	// Initial roles
	{Name: "admin_external_ids", Default: "", Desc: "Comma-separated external IDs that start as admin"},
	{Name: "editor_external_ids", Default: "", Desc: "Comma-separated external IDs that start as editor"},

	// Access
	{Name: "allow_anonymous_read", Default: false, Desc: "Let requests without a session read published pages and the menu"},

	// Pages
	{Name: "revision_retention", Default: string(pagestore.DefaultRetention), Desc: "Revisions of deleted pages: 'delete' or 'retain'"},
	{Name: "max_content_bytes", Default: pagestore.DefaultMaxContentBytes, Desc: "Maximum page content size in bytes"},
	{Name: "seed_demo_content", Default: true, Desc: "Create Home and Rules pages and menu entries when the wiki is empty"},

	// Menu cache
	{Name: "redis_addr", Default: "", Desc: "Redis address for the menu tree cache (empty disables)"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Session event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Role change logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_content", Default: "db", Desc: "Page and menu change logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Operation timeouts
	{Name: "timeout_read", Default: "5s", Desc: "Timeout for single-document reads and small queries"},
	{Name: "timeout_write", Default: "10s", Desc: "Timeout for writes and transactions"},
	{Name: "timeout_batch", Default: "60s", Desc: "Timeout for background jobs"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, STRATAWIKI_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionTTL:    appValues.Duration("session_ttl", 24*time.Hour),
		BrokerKeyHash: appValues.String("broker_key_hash"),

		AdminExternalIDs:  normalize.List(appValues.String("admin_external_ids")),
		EditorExternalIDs: normalize.List(appValues.String("editor_external_ids")),

		AllowAnonymousRead: appValues.Bool("allow_anonymous_read"),

		RevisionRetention: pagestore.Retention(normalize.Option(appValues.String("revision_retention"))),
		MaxContentBytes:   appValues.Int("max_content_bytes"),
		SeedDemoContent:   appValues.Bool("seed_demo_content"),

		RedisAddr: appValues.String("redis_addr"),
		RedisDB:   appValues.Int("redis_db"),

		AuditLogAuth:    normalize.Option(appValues.String("audit_log_auth")),
		AuditLogAdmin:   normalize.Option(appValues.String("audit_log_admin")),
		AuditLogContent: normalize.Option(appValues.String("audit_log_content")),

		TimeoutRead:  appValues.Duration("timeout_read", 5*time.Second),
		TimeoutWrite: appValues.Duration("timeout_write", 10*time.Second),
		TimeoutBatch: appValues.Duration("timeout_batch", 60*time.Second),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	var problems []error
	if appCfg.SessionTTL <= 0 {
		problems = append(problems, errors.New("session_ttl must be positive"))
	}
	if !pagestore.ValidRetention(appCfg.RevisionRetention) {
		problems = append(problems, fmt.Errorf("revision_retention %q must be 'delete' or 'retain'", appCfg.RevisionRetention))
	}
	if appCfg.MaxContentBytes <= 0 {
		problems = append(problems, errors.New("max_content_bytes must be positive"))
	}
	for key, v := range map[string]string{
		"audit_log_auth":    appCfg.AuditLogAuth,
		"audit_log_admin":   appCfg.AuditLogAdmin,
		"audit_log_content": appCfg.AuditLogContent,
	} {
		if !auditlog.ValidPolicy(v) {
			problems = append(problems, fmt.Errorf("%s %q must be one of all, db, log, off", key, v))
		}
	}
	for key, d := range map[string]time.Duration{
		"timeout_read":  appCfg.TimeoutRead,
		"timeout_write": appCfg.TimeoutWrite,
		"timeout_batch": appCfg.TimeoutBatch,
	} {
		if d <= 0 {
			problems = append(problems, fmt.Errorf("%s must be positive", key))
		}
	}
	if appCfg.BrokerKeyHash == "" {
		logger.Warn("broker_key_hash is empty; POST /api/auth/session will reject every request")
	}

	if err := errors.Join(problems...); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	return nil
}
