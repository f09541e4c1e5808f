// Package logger holds the process-wide Zap logger shared by the ledger,
// the settlement pipeline, and the cron jobs.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	sugar *zap.SugaredLogger
	once  sync.Once
)

// Init builds the global logger once. Production gets the JSON encoder;
// everything else gets the console encoder so batch runs stay readable.
func Init(env string) {
	once.Do(func() {
		var base *zap.Logger
		var err error

		if env == "production" {
			base, err = zap.NewProduction()
		} else {
			base, err = zap.NewDevelopment()
		}
		if err != nil {
			base = zap.NewNop()
		}

		sugar = base.Sugar()
	})
}

// Get returns the global sugared logger, initializing a development one if
// Init has not run yet (tests rely on this).
func Get() *zap.SugaredLogger {
	if sugar == nil {
		Init("development")
	}
	return sugar
}

// Sync flushes buffered entries; call it on shutdown.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
