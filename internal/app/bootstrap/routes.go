// internal/app/bootstrap/routes.go
package bootstrap

import (
	"context"
	"net/http"
	"time"

	auditlogfeature "github.com/dalemusser/stratawiki/internal/app/features/auditlog"
	authapifeature "github.com/dalemusser/stratawiki/internal/app/features/authapi"
	errorsfeature "github.com/dalemusser/stratawiki/internal/app/features/errors"
	healthfeature "github.com/dalemusser/stratawiki/internal/app/features/health"
	menusfeature "github.com/dalemusser/stratawiki/internal/app/features/menus"
	pagesfeature "github.com/dalemusser/stratawiki/internal/app/features/pages"
	statusfeature "github.com/dalemusser/stratawiki/internal/app/features/status"
	usersfeature "github.com/dalemusser/stratawiki/internal/app/features/users"
	"github.com/dalemusser/stratawiki/internal/app/store/audit"
	menustore "github.com/dalemusser/stratawiki/internal/app/store/menus"
	pagestore "github.com/dalemusser/stratawiki/internal/app/store/pages"
	revisionstore "github.com/dalemusser/stratawiki/internal/app/store/revisions"
	"github.com/dalemusser/stratawiki/internal/app/store/sessions"
	userstore "github.com/dalemusser/stratawiki/internal/app/store/users"
	"github.com/dalemusser/stratawiki/internal/app/system/auditlog"
	"github.com/dalemusser/stratawiki/internal/app/system/auth"
	"github.com/dalemusser/stratawiki/internal/app/system/authz"
	"github.com/dalemusser/stratawiki/internal/app/system/menucache"
	"github.com/dalemusser/stratawiki/internal/app/system/metrics"
	"github.com/dalemusser/stratawiki/internal/app/system/requestid"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. Everything is served as JSON under /api,
// with health probes and Prometheus metrics at the root.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase

	// Bearer token codec. Production refuses a weak or missing key.
	codec, err := auth.NewTokenCodec(appCfg.SessionKey, appCfg.SessionTTL, coreCfg.Env == "prod", logger)
	if err != nil {
		logger.Error("token codec init failed", zap.Error(err))
		return nil, err
	}

	users := userstore.New(db)
	sessionsStore := sessions.New(db)
	authSvc := auth.NewService(codec, users, sessionsStore, auth.Config{
		AdminExternalIDs:  appCfg.AdminExternalIDs,
		EditorExternalIDs: appCfg.EditorExternalIDs,
	}, logger)

	// Create audit store and logger for security and content event tracking.
	auditStore := audit.New(db)
	auditLogger := auditlog.New(auditStore, logger, auditlog.Config{
		Auth:    appCfg.AuditLogAuth,
		Admin:   appCfg.AuditLogAdmin,
		Content: appCfg.AuditLogContent,
	})

	// Menu tree cache is optional. Keep the pinger a nil interface when
	// Redis is off so health and status report it as disabled.
	var (
		cache       *menucache.Cache
		healthCache healthfeature.CachePinger
		statusCache statusfeature.CachePinger
	)
	if deps.Redis != nil {
		cache = menucache.New(deps.Redis, menucache.DefaultTTL, logger)
		healthCache = cache
		statusCache = cache
	}

	menus := menustore.New(db, cache, logger)
	pages := pagestore.New(db, revisionstore.New(db), menus, pagestore.Config{
		MaxContentBytes: appCfg.MaxContentBytes,
		Retention:       appCfg.RevisionRetention,
	}, logger)

	policy := authz.Policy{
		AllowAnonymousRead: appCfg.AllowAnonymousRead,
		Logger:             logger,
	}

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	r.Use(requestid.Middleware)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// Request timeout middleware: prevents requests from hanging indefinitely.
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	r.Use(metrics.Middleware)

	// Bearer token middleware: loads the user into context when a valid
	// token is presented. A bad token is rejected here with 401.
	r.Use(authSvc.LoadSessionUser)

	// ─────────────────────────────────────────────────────────────────────────────
	// Routes
	// ─────────────────────────────────────────────────────────────────────────────

	// Health check endpoints for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, healthCache, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api/auth", authapifeature.Routes(authapifeature.NewHandler(authSvc, auditLogger, logger), appCfg.BrokerKeyHash, logger))
	r.Mount("/api/pages", pagesfeature.Routes(pagesfeature.NewHandler(pages, auditLogger, logger), policy))
	r.Mount("/api/menus", menusfeature.Routes(menusfeature.NewHandler(menus, auditLogger, logger), policy))
	r.Mount("/api/users", usersfeature.Routes(usersfeature.NewHandler(users, auditLogger, logger), policy))
	r.Mount("/api/audit", auditlogfeature.Routes(auditlogfeature.NewHandler(auditStore, users, logger), policy))

	var jobs statusfeature.JobLister
	if taskRunner != nil {
		jobs = taskRunner
	}
	statusHandler := statusfeature.NewHandler(
		deps.MongoClient,
		statusCache,
		jobs,
		map[string]statusfeature.Counter{
			"pages": pages.Count,
			"users": users.Count,
			"active_sessions": func(ctx context.Context) (int64, error) {
				return sessionsStore.CountActive(ctx, time.Now().UTC())
			},
		},
		coreCfg,
		statusConfig(appCfg),
		logger,
	)
	r.Mount("/api/admin/status", statusfeature.Routes(statusHandler, policy))

	r.NotFound(errorsfeature.NotFound)
	r.MethodNotAllowed(errorsfeature.MethodNotAllowed)

	logger.Info("routes mounted",
		zap.Bool("allow_anonymous_read", appCfg.AllowAnonymousRead),
		zap.Bool("menu_cache", cache != nil),
	)

	return r, nil
}

// statusConfig copies the displayable settings for the admin status report.
func statusConfig(appCfg AppConfig) statusfeature.AppConfig {
	return statusfeature.AppConfig{
		MongoURI:           appCfg.MongoURI,
		MongoDatabase:      appCfg.MongoDatabase,
		MongoMaxPoolSize:   appCfg.MongoMaxPoolSize,
		MongoMinPoolSize:   appCfg.MongoMinPoolSize,
		SessionKey:         appCfg.SessionKey,
		SessionTTL:         appCfg.SessionTTL,
		BrokerKeyHash:      appCfg.BrokerKeyHash,
		AdminExternalIDs:   appCfg.AdminExternalIDs,
		EditorExternalIDs:  appCfg.EditorExternalIDs,
		AllowAnonymousRead: appCfg.AllowAnonymousRead,
		RevisionRetention:  string(appCfg.RevisionRetention),
		MaxContentBytes:    appCfg.MaxContentBytes,
		SeedDemoContent:    appCfg.SeedDemoContent,
		RedisAddr:          appCfg.RedisAddr,
		RedisDB:            appCfg.RedisDB,
		AuditLogAuth:       appCfg.AuditLogAuth,
		AuditLogAdmin:      appCfg.AuditLogAdmin,
		AuditLogContent:    appCfg.AuditLogContent,
	}
}
