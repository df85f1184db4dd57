// internal/app/features/status/handler.go
//
// Package status serves the admin status report: database and cache health,
// runtime figures, wiki record counts and the effective configuration with
// secrets masked.
package status

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dalemusser/stratawiki/internal/app/system/authz"
	"github.com/dalemusser/stratawiki/internal/app/system/jsonutil"
	"github.com/dalemusser/stratawiki/internal/app/system/tasks"
	"github.com/dalemusser/stratawiki/internal/app/system/timeouts"
	"github.com/dalemusser/stratawiki/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

var startTime = time.Now()

// Counter reports how many records of one kind exist.
type Counter func(ctx context.Context) (int64, error)

// CachePinger checks the menu cache backend.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// JobLister reports background job state.
type JobLister interface {
	Snapshot() []tasks.JobState
}

// Handler holds dependencies for the status report.
type Handler struct {
	Client  *mongo.Client
	Cache   CachePinger // nil when no cache is configured
	Jobs    JobLister   // nil when no runner is started
	Counts  map[string]Counter
	Log     *zap.Logger
	CoreCfg *config.CoreConfig
	AppCfg  AppConfig
}

// AppConfig mirrors bootstrap.AppConfig for status display.
type AppConfig struct {
	// MongoDB
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Sessions
	SessionKey        string
	SessionTTL        time.Duration
	BrokerKeyHash     string
	AdminExternalIDs  []string
	EditorExternalIDs []string

	// Access and content
	AllowAnonymousRead bool
	RevisionRetention  string
	MaxContentBytes    int
	SeedDemoContent    bool

	// Cache
	RedisAddr string
	RedisDB   int

	// Audit
	AuditLogAuth    string
	AuditLogAdmin   string
	AuditLogContent string
}

// NewHandler creates a new status Handler.
func NewHandler(client *mongo.Client, cache CachePinger, jobs JobLister, counts map[string]Counter, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) *Handler {
	return &Handler{
		Client:  client,
		Cache:   cache,
		Jobs:    jobs,
		Counts:  counts,
		CoreCfg: coreCfg,
		AppCfg:  appCfg,
		Log:     logger,
	}
}

// Routes returns a chi.Router with the status route mounted.
func Routes(h *Handler, policy authz.Policy) http.Handler {
	r := chi.NewRouter()
	r.Use(policy.Require(models.LevelAdmin))
	r.Get("/", h.Serve)
	return r
}

// ConfigItem represents a single configuration variable for display.
type ConfigItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ConfigGroup represents a logical group of configuration items.
type ConfigGroup struct {
	Name  string       `json:"name"`
	Items []ConfigItem `json:"items"`
}

type dbStatus struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
	PingMS    int64  `json:"ping_ms"`
	Version   string `json:"version,omitempty"`
}

type cacheStatus struct {
	Enabled bool   `json:"enabled"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

type systemStatus struct {
	GoVersion     string `json:"go_version"`
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	NumGoroutine  int    `json:"goroutines"`
	MemAlloc      string `json:"mem_alloc"`
}

type statusResponse struct {
	Database     dbStatus         `json:"database"`
	Cache        cacheStatus      `json:"cache"`
	System       systemStatus     `json:"system"`
	Counts       map[string]int64 `json:"counts"`
	Jobs         []tasks.JobState `json:"jobs"`
	ConfigGroups []ConfigGroup    `json:"config"`
}

// Serve handles GET /.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.Log, "status")
	defer cancel()

	up := time.Since(startTime)
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	resp := statusResponse{
		System: systemStatus{
			GoVersion:     runtime.Version(),
			Uptime:        formatDuration(up),
			UptimeSeconds: int64(up.Seconds()),
			NumGoroutine:  runtime.NumGoroutine(),
			MemAlloc:      formatBytes(m.Alloc),
		},
		Counts: make(map[string]int64, len(h.Counts)),
	}

	// Check database with ping latency
	pingStart := time.Now()
	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		resp.Database.Error = err.Error()
		h.Log.Warn("status: database ping failed", zap.Error(err))
	} else {
		resp.Database.Connected = true
		resp.Database.PingMS = time.Since(pingStart).Milliseconds()

		var result bson.M
		if err := h.Client.Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&result); err == nil {
			if version, ok := result["version"].(string); ok {
				resp.Database.Version = version
			}
		}
	}

	if h.Cache != nil {
		resp.Cache.Enabled = true
		if err := h.Cache.Ping(ctx); err != nil {
			resp.Cache.Error = err.Error()
			h.Log.Warn("status: cache ping failed", zap.Error(err))
		} else {
			resp.Cache.OK = true
		}
	}

	names := make([]string, 0, len(h.Counts))
	for name := range h.Counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n, err := h.Counts[name](ctx)
		if err != nil {
			h.Log.Warn("status: count failed", zap.String("kind", name), zap.Error(err))
			n = -1
		}
		resp.Counts[name] = n
	}

	resp.Jobs = []tasks.JobState{}
	if h.Jobs != nil {
		resp.Jobs = h.Jobs.Snapshot()
	}

	resp.ConfigGroups = h.buildConfigGroups()
	jsonutil.OK(w, resp)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return formatPlural(days, "day") + " " + formatPlural(hours, "hour")
	}
	if hours > 0 {
		return formatPlural(hours, "hour") + " " + formatPlural(minutes, "min")
	}
	return formatPlural(minutes, "min")
}

func formatPlural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return formatUint(uint64(n)) + " " + unit + "s"
}

// formatBytes formats bytes in a human-readable way.
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return formatUint(b) + " B"
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return formatFloat(float64(b)/float64(div)) + " " + string("KMGTPE"[exp]) + "iB"
}

func formatUint(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func formatFloat(f float64) string {
	// Simple formatting to 1 decimal place
	i := int(f * 10)
	return formatUint(uint64(i/10)) + "." + string(rune('0'+i%10))
}

// buildConfigGroups creates organized groups of config items for display.
func (h *Handler) buildConfigGroups() []ConfigGroup {
	groups := []ConfigGroup{}

	// Helper to mask sensitive values
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		if len(s) <= 4 {
			return "****"
		}
		return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
	}

	// Helper to format string slices
	join := func(s []string) string {
		if len(s) == 0 {
			return ""
		}
		return strings.Join(s, ", ")
	}

	// Helper to format bool
	boolStr := func(b bool) string {
		if b {
			return "true"
		}
		return "false"
	}

	if h.CoreCfg != nil {
		groups = append(groups, ConfigGroup{
			Name: "Environment",
			Items: []ConfigItem{
				{Name: "env", Value: h.CoreCfg.Env},
				{Name: "log_level", Value: h.CoreCfg.LogLevel},
			},
		})
		groups = append(groups, ConfigGroup{
			Name: "HTTP Server",
			Items: []ConfigItem{
				{Name: "http_port", Value: fmt.Sprintf("%d", h.CoreCfg.HTTP.HTTPPort)},
				{Name: "https_port", Value: fmt.Sprintf("%d", h.CoreCfg.HTTP.HTTPSPort)},
				{Name: "use_https", Value: boolStr(h.CoreCfg.HTTP.UseHTTPS)},
				{Name: "read_timeout", Value: h.CoreCfg.HTTP.ReadTimeout.String()},
				{Name: "write_timeout", Value: h.CoreCfg.HTTP.WriteTimeout.String()},
				{Name: "shutdown_timeout", Value: h.CoreCfg.HTTP.ShutdownTimeout.String()},
				{Name: "max_request_body_bytes", Value: fmt.Sprintf("%d", h.CoreCfg.MaxRequestBodyBytes)},
			},
		})
		groups = append(groups, ConfigGroup{
			Name: "CORS",
			Items: []ConfigItem{
				{Name: "enable_cors", Value: boolStr(h.CoreCfg.CORS.EnableCORS)},
				{Name: "cors_allowed_origins", Value: join(h.CoreCfg.CORS.CORSAllowedOrigins)},
				{Name: "cors_allowed_methods", Value: join(h.CoreCfg.CORS.CORSAllowedMethods)},
				{Name: "cors_allowed_headers", Value: join(h.CoreCfg.CORS.CORSAllowedHeaders)},
			},
		})
	}

	// Database
	dbItems := []ConfigItem{
		{Name: "mongo_uri", Value: mask(h.AppCfg.MongoURI)},
		{Name: "mongo_database", Value: h.AppCfg.MongoDatabase},
		{Name: "mongo_max_pool_size", Value: fmt.Sprintf("%d", h.AppCfg.MongoMaxPoolSize)},
		{Name: "mongo_min_pool_size", Value: fmt.Sprintf("%d", h.AppCfg.MongoMinPoolSize)},
	}
	if h.CoreCfg != nil {
		dbItems = append(dbItems,
			ConfigItem{Name: "db_connect_timeout", Value: h.CoreCfg.DBConnectTimeout.String()},
			ConfigItem{Name: "index_boot_timeout", Value: h.CoreCfg.IndexBootTimeout.String()},
		)
	}
	groups = append(groups, ConfigGroup{Name: "Database", Items: dbItems})

	groups = append(groups, ConfigGroup{
		Name: "Cache",
		Items: []ConfigItem{
			{Name: "redis_addr", Value: h.AppCfg.RedisAddr},
			{Name: "redis_db", Value: fmt.Sprintf("%d", h.AppCfg.RedisDB)},
		},
	})

	groups = append(groups, ConfigGroup{
		Name: "Sessions",
		Items: []ConfigItem{
			{Name: "session_key", Value: mask(h.AppCfg.SessionKey)},
			{Name: "session_ttl", Value: h.AppCfg.SessionTTL.String()},
			{Name: "broker_key_hash", Value: mask(h.AppCfg.BrokerKeyHash)},
			{Name: "admin_external_ids", Value: join(h.AppCfg.AdminExternalIDs)},
			{Name: "editor_external_ids", Value: join(h.AppCfg.EditorExternalIDs)},
		},
	})

	groups = append(groups, ConfigGroup{
		Name: "Content",
		Items: []ConfigItem{
			{Name: "allow_anonymous_read", Value: boolStr(h.AppCfg.AllowAnonymousRead)},
			{Name: "revision_retention", Value: h.AppCfg.RevisionRetention},
			{Name: "max_content_bytes", Value: fmt.Sprintf("%d", h.AppCfg.MaxContentBytes)},
			{Name: "seed_demo_content", Value: boolStr(h.AppCfg.SeedDemoContent)},
		},
	})

	groups = append(groups, ConfigGroup{
		Name: "Audit Logging",
		Items: []ConfigItem{
			{Name: "audit_log_auth", Value: h.AppCfg.AuditLogAuth},
			{Name: "audit_log_admin", Value: h.AppCfg.AuditLogAdmin},
			{Name: "audit_log_content", Value: h.AppCfg.AuditLogContent},
		},
	})

	return groups
}
