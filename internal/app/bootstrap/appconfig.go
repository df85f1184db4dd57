// internal/app/bootstrap/appconfig.go
package bootstrap

import (
	"time"

	pagestore "github.com/dalemusser/stratawiki/internal/app/store/pages"
)

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig handles
// ports, TLS, logging, CORS and request limits; everything specific to the
// wiki lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Session configuration
	SessionKey    string        // Secret key for signing session tokens (must be strong in production)
	SessionTTL    time.Duration // Session lifetime (default: 24h)
	BrokerKeyHash string        // bcrypt hash of the key the identity broker presents

	// Initial role assignment, applied on first login only
	AdminExternalIDs  []string
	EditorExternalIDs []string

	// AllowAnonymousRead opens browse routes to requests without a session.
	AllowAnonymousRead bool

	// Pages
	RevisionRetention pagestore.Retention // what happens to revisions when a page is deleted
	MaxContentBytes   int                 // page content bound (default: 1 MiB)
	SeedDemoContent   bool                // seed Home/Rules when the wiki is empty

	// Menu tree cache (optional)
	RedisAddr string
	RedisDB   int

	// Audit logging configuration
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	AuditLogAuth    string // Session issue and revocation
	AuditLogAdmin   string // Role changes
	AuditLogContent string // Page and menu mutations

	// Operation timeouts
	TimeoutRead  time.Duration
	TimeoutWrite time.Duration
	TimeoutBatch time.Duration
}
