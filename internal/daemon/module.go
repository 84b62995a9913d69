// Package daemon composes the bridge daemon with fx: configuration,
// logging, the session lock, the view store, the session manager, the
// sync poller and the HTTP API.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/osari/wabridge/internal/bridge"
	"github.com/osari/wabridge/internal/bridge/wa"
	"github.com/osari/wabridge/internal/bus"
	"github.com/osari/wabridge/internal/config"
	"github.com/osari/wabridge/internal/httpapi"
	"github.com/osari/wabridge/internal/lock"
	"github.com/osari/wabridge/internal/logging"
	"github.com/osari/wabridge/internal/mediacache"
	"github.com/osari/wabridge/internal/poller"
	"github.com/osari/wabridge/internal/send"
	"github.com/osari/wabridge/internal/session"
	"github.com/osari/wabridge/internal/store"
	syncengine "github.com/osari/wabridge/internal/sync"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	SessionName string
	ListenAddr  string // optional override; empty = use config value
	ConfigPath  string // optional override; empty = use default path
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideMediaCache,
			provideFactory,
			provideSessionManager,
			provideSyncEngine,
			providePipeline,
			providePoller,
			provideAPI,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if p.SessionName != "" {
		cfg.Session = p.SessionName
	}
	if p.ListenAddr != "" {
		cfg.ListenAddr = p.ListenAddr
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	if err := config.EnsureDirs(cfg.Session); err != nil {
		return nil, err
	}
	return logging.New(config.LogPath(cfg.Session), cfg.Session)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring session lock", zap.String("session", cfg.Session))
	l, err := lock.Acquire(config.Dir(cfg.Session))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	db, err := store.OpenMemory("view-" + cfg.Session)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("view store initialized", zap.Uint("schema_version", result.Version))
	return db, nil
}

func provideMediaCache(cfg *config.Config) *mediacache.Cache {
	dir := cfg.CacheDir
	if dir == "" {
		dir = config.MediaCacheDir(cfg.Session)
	}
	return mediacache.New(dir)
}

func provideFactory(cfg *config.Config, logger *zap.Logger) bridge.Factory {
	return wa.NewFactory(config.BridgeDBPath(cfg.Session), logger)
}

func provideSessionManager(cfg *config.Config, factory bridge.Factory, b *bus.Bus, logger *zap.Logger) *session.Manager {
	opts := bridge.Options{
		Session: cfg.Session,
		DataDir: config.Dir(cfg.Session),
	}
	return session.NewManager(factory, opts, b, logger)
}

func provideSyncEngine(sm *session.Manager, db *store.DB, cache *mediacache.Cache, b *bus.Bus, logger *zap.Logger) *syncengine.Engine {
	return syncengine.NewEngine(sm, db, cache, b, logger)
}

func providePipeline(sm *session.Manager, logger *zap.Logger) *send.Pipeline {
	return send.NewPipeline(sm, logger)
}

func providePoller(cfg *config.Config, sm *session.Manager, engine *syncengine.Engine, db *store.DB, b *bus.Bus, logger *zap.Logger) *poller.Poller {
	return poller.New(sm, engine, db, b, cfg.AuthPollInterval(), cfg.SyncPollInterval(), logger)
}

func provideAPI(sm *session.Manager, engine *syncengine.Engine, db *store.DB, pipeline *send.Pipeline, logger *zap.Logger) *httpapi.API {
	return httpapi.New(sm, engine, db, pipeline, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, sm *session.Manager, pl *poller.Poller, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()

			pl.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pl.Stop()
			sm.Close()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing view store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
