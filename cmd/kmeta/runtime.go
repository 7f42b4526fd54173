package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alfredjeanlab/kmeta/internal/cache"
	"github.com/alfredjeanlab/kmeta/internal/config"
	"github.com/alfredjeanlab/kmeta/internal/events"
	"github.com/alfredjeanlab/kmeta/internal/hooks"
	"github.com/alfredjeanlab/kmeta/internal/host"
	"github.com/alfredjeanlab/kmeta/internal/metadata"
	"github.com/alfredjeanlab/kmeta/internal/model"
	"github.com/alfredjeanlab/kmeta/internal/store/postgres"
)

// runtime is the wired engine shared by every command.
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *postgres.PostgresStore
	publisher  events.Publisher
	dispatcher *hooks.Dispatcher
	svc        *metadata.Service

	closers []func() error
}

// newLogger keeps one-shot commands quiet; long-running ones log at info.
func newLogger(daemon bool) *slog.Logger {
	level := slog.LevelWarn
	if daemon {
		level = slog.LevelInfo
	}
	if os.Getenv("KMETA_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newRuntime(logger *slog.Logger) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	st, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	r := &runtime{cfg: cfg, logger: logger, store: st}
	r.closers = append(r.closers, st.Close)

	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.publisher = pub
		r.closers = append(r.closers, pub.Close)
		logger.Debug("events enabled", "nats_url", cfg.NATSURL)
	} else {
		r.publisher = events.NoopPublisher{}
		logger.Debug("events disabled (KMETA_NATS_URL not set)")
	}

	r.dispatcher = hooks.NewDispatcher(r.publisher, logger)
	for _, h := range policy.Hooks {
		err := r.dispatcher.RegisterCommand(hooks.CommandHook{
			Event:     h.Event,
			Subject:   h.Subject,
			Command:   h.Command,
			Timeout:   h.Timeout,
			OnFailure: h.OnFailure,
			Dir:       h.Dir,
		})
		if err != nil {
			r.Close()
			return nil, err
		}
	}

	r.svc = metadata.New(st, host.NewDBHost(st),
		metadata.WithCache(cache.NewMetadataCache(r.cacheBackend(), cfg.CacheTTL, logger)),
		metadata.WithNotifier(r.dispatcher),
		metadata.WithLogger(logger),
	)
	for _, ind := range policy.Independent {
		r.svc.RegisterIndependent(ind.Type, ind.Subtype)
	}
	r.svc.RegisterWith(r.dispatcher)

	return r, nil
}

// cacheBackend picks Redis when configured and falls back to an in-process
// cache. A zero TTL disables caching.
func (r *runtime) cacheBackend() cache.Cache {
	if r.cfg.CacheTTL == 0 {
		return cache.NoopCache{}
	}
	cc := cache.Config{DefaultTTL: r.cfg.CacheTTL, Prefix: r.cfg.CachePrefix}
	if r.cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCacheWithConfig(cache.RedisConfig{
			Addr:     r.cfg.RedisAddr,
			Password: r.cfg.RedisPassword,
			DB:       r.cfg.RedisDB,
			Cache:    cc,
		})
		if err == nil {
			r.closers = append(r.closers, rc.Close)
			return rc
		}
		r.logger.Warn("redis cache unavailable, using in-process cache", "addr", r.cfg.RedisAddr, "err", err)
	}
	mc := cache.NewMemoryCacheWithConfig(cc)
	r.closers = append(r.closers, mc.Close)
	return mc
}

// Close releases resources in reverse order of acquisition.
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Error("close failed", "err", err)
		}
	}
	r.closers = nil
}

// notifyEntity fires an entity notification through the dispatcher so that
// local listeners (the access cascade) run and the event is published.
func (r *runtime) notifyEntity(ctx context.Context, kind model.EventKind, e *model.Entity) bool {
	return r.dispatcher.Notify(ctx, model.Notification{Kind: kind, Subject: e.Type, Entity: e})
}
