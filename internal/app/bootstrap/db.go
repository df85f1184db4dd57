// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	menustore "github.com/dalemusser/stratawiki/internal/app/store/menus"
	pagestore "github.com/dalemusser/stratawiki/internal/app/store/pages"
	revisionstore "github.com/dalemusser/stratawiki/internal/app/store/revisions"
	userstore "github.com/dalemusser/stratawiki/internal/app/store/users"
	"github.com/dalemusser/stratawiki/internal/app/system/indexes"
	"github.com/dalemusser/stratawiki/internal/app/system/menucache"
	"github.com/dalemusser/stratawiki/internal/app/system/seeding"
	"github.com/dalemusser/stratawiki/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and, when redis_addr is set, to Redis.
//
// WAFFLE calls this after configuration is loaded but before EnsureSchema and
// Startup. A Redis failure is fatal only when Redis was asked for; the menu
// tree is served from MongoDB when no cache is configured.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	// Configure MongoDB connection pool
	poolCfg := wafflemongo.DefaultPoolConfig()
	if appCfg.MongoMaxPoolSize > 0 {
		poolCfg.MaxPoolSize = appCfg.MongoMaxPoolSize
	}
	if appCfg.MongoMinPoolSize > 0 {
		poolCfg.MinPoolSize = appCfg.MongoMinPoolSize
	}

	client, err := wafflemongo.ConnectWithPool(ctx, appCfg.MongoURI, appCfg.MongoDatabase, poolCfg)
	if err != nil {
		return DBDeps{}, err
	}

	db := client.Database(appCfg.MongoDatabase)

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", poolCfg.MaxPoolSize),
		zap.Uint64("min_pool_size", poolCfg.MinPoolSize),
	)

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: db,
	}

	if appCfg.RedisAddr != "" {
		rdb, err := menucache.Connect(ctx, menucache.Config{
			Addr:    appCfg.RedisAddr,
			DB:      appCfg.RedisDB,
			Timeout: coreCfg.DBConnectTimeout,
		})
		if err != nil {
			_ = client.Disconnect(ctx)
			return DBDeps{}, fmt.Errorf("connect redis: %w", err)
		}
		deps.Redis = rdb
		logger.Info("connected to Redis",
			zap.String("addr", appCfg.RedisAddr),
			zap.Int("db", appCfg.RedisDB),
		)
	} else {
		logger.Info("menu tree cache disabled (no redis_addr)")
	}

	return deps, nil
}

// EnsureSchema sets up collections, validators, indexes and demo content.
//
// This runs after ConnectDB succeeds but before Startup and before the HTTP
// handler is built. The context has a timeout based on
// coreCfg.IndexBootTimeout.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	// Ensure collections exist and attach JSON-Schema validators.
	// This runs first so indexes can be created on existing collections.
	logger.Info("ensuring collections and validators")
	if err := validators.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure validators", zap.Error(err))
		return err
	}

	logger.Info("ensuring database indexes")
	if err := indexes.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure indexes", zap.Error(err))
		return err
	}

	if appCfg.SeedDemoContent {
		logger.Info("seeding demo content")
		menus := menustore.New(db, nil, logger)
		pages := pagestore.New(db, revisionstore.New(db), menus, pagestore.Config{
			MaxContentBytes: appCfg.MaxContentBytes,
			Retention:       appCfg.RevisionRetention,
		}, logger)
		if err := seeding.SeedAll(ctx, seeding.Stores{
			Users: userstore.New(db),
			Pages: pages,
			Menus: menus,
		}, logger); err != nil {
			logger.Error("failed to seed demo content", zap.Error(err))
			return err
		}
	}

	logger.Info("database schema ensured successfully")
	return nil
}
