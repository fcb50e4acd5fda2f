// Package factory assembles the configured bot with its session store and
// config watcher for the command-line entry points.
package factory

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/ChamsBouzaiene/chatbridge/internal/bot"
	"github.com/ChamsBouzaiene/chatbridge/internal/config"
	"github.com/ChamsBouzaiene/chatbridge/internal/session"
)

// Options controls Build.
type Options struct {
	ConfigPath    string        // empty uses the user config dir
	Watch         bool          // reload on config file changes
	SweepInterval time.Duration // expired-session sweep; 0 disables
	BotOptions    []bot.Option
}

// Runtime is a ready-to-serve bot plus the resources it owns.
type Runtime struct {
	Config   *config.Manager
	Bot      *bot.ChatBot
	Sessions *session.Manager
	Store    session.Store // nil when persistence is off

	watcher *config.Watcher
	cancel  context.CancelFunc
}

// Build loads configuration, opens the session store, restores persisted
// sessions and creates the bot.
func Build(ctx context.Context, opts Options) (*Runtime, error) {
	cfgManager, err := config.NewManager(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config manager: %w", err)
	}
	cfg, err := cfgManager.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfgManager.Exists() {
		log.Printf("[CONFIG] loaded from: %s", cfgManager.GetConfigPath())
	} else {
		log.Printf("[CONFIG] %s not found, using defaults and environment", cfgManager.GetConfigPath())
	}

	sessions := session.NewManager(bot.SessionOptions(cfg))

	store, err := session.OpenStore(ctx, StoreConfig(cfg, cfgManager.GetConfigPath()))
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	if store != nil {
		if err := sessions.Load(ctx, store); err != nil {
			log.Printf("[SESSION] WARNING: %v (starting empty)", err)
		}
	}

	botOpts := append([]bot.Option{
		bot.WithSessions(sessions),
		bot.WithReloader(cfgManager),
	}, opts.BotOptions...)
	b, err := bot.New(cfg, botOpts...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	rt := &Runtime{
		Config:   cfgManager,
		Bot:      b,
		Sessions: sessions,
		Store:    store,
	}

	cfgManager.Subscribe(func(cfg *config.Config) {
		if err := b.Apply(cfg); err != nil {
			log.Printf("[CONFIG] WARNING: %v", err)
		}
	})

	if opts.Watch {
		rt.startWatcher()
	}

	if opts.SweepInterval > 0 {
		sweepCtx, cancel := context.WithCancel(context.Background())
		rt.cancel = cancel
		go rt.sweep(sweepCtx, opts.SweepInterval)
	}

	return rt, nil
}

// StoreConfig maps the session_store settings. Relative or empty paths are
// resolved next to the config file.
func StoreConfig(cfg *config.Config, configPath string) session.StoreConfig {
	st := cfg.SessionStore
	path := st.Path
	if path == "" || !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(configPath), path)
	}
	return session.StoreConfig{
		Kind: st.Kind,
		Path: path,
		DSN:  st.DSN,
		Redis: session.RedisStoreConfig{
			Address:  st.RedisAddress,
			Password: st.RedisPassword,
			DB:       st.RedisDB,
			Key:      st.RedisKey,
			TTL:      cfg.TTL(),
		},
	}
}

func (r *Runtime) startWatcher() {
	w, err := config.NewWatcher(r.Config)
	if err != nil {
		log.Printf("[CONFIG] WARNING: %v (live reload disabled)", err)
		return
	}
	if err := w.Start(); err != nil {
		w.Stop()
		log.Printf("[CONFIG] WARNING: %v (live reload disabled)", err)
		return
	}
	r.watcher = w
	log.Printf("[CONFIG] watching %s", r.Config.GetConfigPath())
}

func (r *Runtime) sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sessions.Sweep(); n > 0 {
				log.Printf("[SESSION] swept %d expired session(s)", n)
			}
		}
	}
}

// Close stops background work, flushes sessions to the store and closes it.
func (r *Runtime) Close(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.watcher != nil {
		if err := r.watcher.Stop(); err != nil {
			log.Printf("[CONFIG] WARNING: failed to stop watcher: %v", err)
		}
	}
	if r.Store == nil {
		return nil
	}

	flushErr := r.Sessions.Flush(ctx, r.Store)
	if err := r.Store.Close(); err != nil && flushErr == nil {
		return fmt.Errorf("failed to close session store: %w", err)
	}
	return flushErr
}
