// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/stratawiki/internal/app/store/sessions"
	"github.com/dalemusser/stratawiki/internal/app/system/tasks"
	"github.com/dalemusser/stratawiki/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It applies the configured operation timeouts and starts the background
// task runner. Returning a non-nil error aborts startup.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Read:  appCfg.TimeoutRead,
		Write: appCfg.TimeoutWrite,
		Batch: appCfg.TimeoutBatch,
	})
	logger.Info("operation timeouts configured",
		zap.Duration("read", timeouts.Read()),
		zap.Duration("write", timeouts.Write()),
		zap.Duration("batch", timeouts.Batch()),
	)

	startTaskRunner(deps.MongoDatabase, logger)
	return nil
}

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// startTaskRunner initializes and starts the background task runner.
func startTaskRunner(db *mongo.Database, logger *zap.Logger) {
	taskRunner = tasks.New(logger)
	taskRunner.Register(tasks.SessionCleanupJob(sessions.New(db), logger))
	taskRunner.Start()
}
