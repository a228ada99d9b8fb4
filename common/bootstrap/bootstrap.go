package bootstrap

import (
	"context"
	"fmt"

	"github.com/clinterm/termserver/common/cache"
	"github.com/clinterm/termserver/common/config"
	"github.com/clinterm/termserver/common/db"
	"github.com/clinterm/termserver/common/logger"
	"github.com/clinterm/termserver/common/redis"
)

// Setup initializes all service components
// This is the main entry point for the service binary
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	// Apply options
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// 3. Initialize database (if not skipped)
	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.DB.Close()
			return nil
		})
	}

	// 4. Initialize redis (if not skipped)
	if !options.skipRedis {
		components.Redis, err = redis.NewClient(&components.Config.Redis, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		components.addCleanup(func() error {
			return components.Redis.Close()
		})
	}

	// 5. Initialize cache (if not skipped)
	if !options.skipCache && components.Config.Cache.Enabled {
		if components.Config.Cache.Type == "redis" && components.Redis != nil {
			components.Cache = cache.NewRedisCache(components.Redis, serviceName+":")
		} else {
			components.Cache = cache.NewMemoryCache(components.Logger)
		}

		components.addCleanup(func() error {
			return components.Cache.Close()
		})
	}

	components.Logger.Info("components initialized")
	return components, nil
}
