// Package app wires all noisewatch subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context ends, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithEventStore,
// WithSettingsStore, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/noisewatch/internal/alert"
	"github.com/MrWong99/noisewatch/internal/config"
	"github.com/MrWong99/noisewatch/internal/health"
	"github.com/MrWong99/noisewatch/internal/monitor"
	"github.com/MrWong99/noisewatch/internal/notify"
	"github.com/MrWong99/noisewatch/internal/observe"
	"github.com/MrWong99/noisewatch/internal/profile"
	"github.com/MrWong99/noisewatch/internal/store"
	badgerstore "github.com/MrWong99/noisewatch/internal/store/badger"
	chstore "github.com/MrWong99/noisewatch/internal/store/clickhouse"
	"github.com/MrWong99/noisewatch/internal/store/postgres"
	"github.com/MrWong99/noisewatch/pkg/audio"
)

// settingsLoadTimeout bounds the settings read at session start.
const settingsLoadTimeout = 2 * time.Second

// Providers holds the audio and inference backends. Populated by main.go via
// the config registry.
type Providers struct {
	// Capturer opens the microphone. Required.
	Capturer audio.Capturer

	// Classifier labels classification windows. Required.
	Classifier monitor.Classifier

	// Cue plays the alert sound. Nil means no sound.
	Cue monitor.Cue

	// Checks are readiness checks owned by the providers, such as the
	// classifier breaker state.
	Checks []health.Checker
}

// App owns all subsystem lifetimes of the noise monitor.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	events        store.EventStore
	notifications store.NotificationStore
	settings      store.SettingsStore
	catalog       *profile.Catalog
	prefs         *profile.Settings
	recorder      *store.Guard
	fanout        *notify.Fanout
	hub           *notify.Hub
	live          *monitor.LiveState
	sessions      *monitor.SessionManager
	metrics       *observe.Metrics
	health        *health.Handler
	checkers      []health.Checker
	handler       http.Handler

	// engine is the alert engine of the current or most recent session.
	engineMu sync.Mutex
	engine   *alert.Engine
	alertCfg config.AlertConfig

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithEventStore injects an event store instead of creating one from config.
func WithEventStore(s store.EventStore) Option {
	return func(a *App) { a.events = s }
}

// WithNotificationStore injects a notification store instead of creating one
// from config.
func WithNotificationStore(s store.NotificationStore) Option {
	return func(a *App) { a.notifications = s }
}

// WithSettingsStore injects a settings store instead of creating one from
// config.
func WithSettingsStore(s store.SettingsStore) Option {
	return func(a *App) { a.settings = s }
}

// WithMetrics overrides observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithNotifier adds an alert sink under name.
func WithNotifier(name string, n notify.Notifier) Option {
	return func(a *App) { a.fanout.Add(name, n) }
}

// WithReadinessCheck adds a checker to /readyz.
func WithReadinessCheck(c health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, c) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Capturer == nil || providers.Classifier == nil {
		return nil, errors.New("app: capturer and classifier are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		fanout:    notify.NewFanout(),
		live:      monitor.NewLiveState(),
		alertCfg:  cfg.Alert,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Profiles + user settings ──────────────────────────────────────
	catalog, err := profile.NewCatalog(cfg.Profiles)
	if err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init profiles: %w", err)
	}
	a.catalog = catalog
	a.prefs = profile.NewSettings(a.settings, catalog)

	// ── 3. Recorder ──────────────────────────────────────────────────────
	a.recorder = store.NewGuard(a.events, a.notifications,
		store.WithOnError(func(kind string, _ error) {
			a.metrics.RecordPersistError(context.Background(), kind)
		}),
	)

	// ── 4. Live feed ─────────────────────────────────────────────────────
	if ws := cfg.Notify.WebSocket; ws.Enabled {
		a.hub = notify.NewHub(a.live,
			notify.WithMinInterval(ws.MinInterval),
			notify.WithOriginPatterns(ws.OriginPatterns...),
		)
		a.fanout.Add("websocket", a.hub)
	}

	// ── 5. Sessions ──────────────────────────────────────────────────────
	a.sessions = monitor.NewSessionManager(a.newMonitor)
	a.checkers = append(a.checkers, providers.Checks...)
	a.checkers = append(a.checkers, health.Checker{
		Name:     "audio",
		Check:    a.sessions.Check,
		Optional: true,
	})
	a.health = health.New(a.checkers...)

	// ── 6. HTTP ──────────────────────────────────────────────────────────
	a.handler = a.routes()

	slog.Info("app initialised",
		"profiles", len(catalog.List()),
		"notifiers", a.fanout.Len(),
		"websocket", a.hub != nil,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStorage opens the configured backends. Without a Postgres DSN the
// history lives in memory; without a badger dir so do the settings.
func (a *App) initStorage(ctx context.Context) error {
	sc := a.cfg.Storage

	var mem *store.MemStore
	memStore := func() *store.MemStore {
		if mem == nil {
			mem = store.NewMemStore()
		}
		return mem
	}

	if a.events == nil || a.notifications == nil {
		if sc.PostgresDSN != "" {
			pg, err := postgres.NewStore(ctx, sc.PostgresDSN, postgres.WithMaxConns(sc.PostgresMaxConns))
			if err != nil {
				return err
			}
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
			a.checkers = append(a.checkers, health.Checker{Name: "postgres", Check: pg.Ping})
			if a.events == nil {
				a.events = pg
			}
			if a.notifications == nil {
				a.notifications = pg
			}
		} else {
			if a.events == nil {
				a.events = memStore()
			}
			if a.notifications == nil {
				a.notifications = memStore()
			}
		}
	}

	if a.settings == nil {
		if sc.BadgerDir != "" {
			bs, err := badgerstore.Open(sc.BadgerDir)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, bs.Close)
			a.settings = bs
		} else {
			a.settings = memStore()
		}
	}

	if ch := sc.ClickHouse; ch.Addr != "" {
		sink, err := chstore.Open(ctx, chstore.Config{
			Addr:     ch.Addr,
			Database: ch.Database,
			Username: ch.Username,
			Password: ch.Password,
		})
		if err != nil {
			// Analytics are optional; the monitor runs without them.
			slog.Warn("clickhouse unavailable, event mirror disabled", "addr", ch.Addr, "err", err)
			return nil
		}
		a.events = store.NewTee(a.events, sink)
		a.closers = append(a.closers, sink.Close)
		a.checkers = append(a.checkers, health.Checker{Name: "clickhouse", Check: sink.Ping, Optional: true})
	}
	return nil
}

// newMonitor builds the monitor for one session. Each session gets a fresh
// alert engine configured from the current alert section, reading settings
// refreshed from the store here rather than on the audio loop.
func (a *App) newMonitor(ctx context.Context) *monitor.Monitor {
	lctx, cancel := context.WithTimeout(ctx, settingsLoadTimeout)
	err := a.prefs.Load(lctx)
	cancel()
	if err != nil {
		slog.Warn("app: settings unreadable at session start; alerts stay on", "err", err)
	}

	a.engineMu.Lock()
	ac := a.alertCfg
	eng := alert.New(a.prefs, alert.WithConfig(ac.EngineConfig()))
	a.engine = eng
	a.engineMu.Unlock()

	return monitor.New(monitor.Config{
		Capturer:      a.providers.Capturer,
		Classifier:    a.providers.Classifier,
		Engine:        eng,
		Cue:           a.providers.Cue,
		Recorder:      a.recorder,
		Notifier:      a.fanout,
		Live:          a.live,
		Metrics:       a.metrics,
		ProcessedOnly: a.cfg.Audio.ProcessedOnly,
		FrameSize:     a.cfg.Audio.FrameSize,
		EventInterval: ac.EventInterval,
	})
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Sessions returns the session manager.
func (a *App) Sessions() *monitor.SessionManager { return a.sessions }

// Live returns the published monitoring state.
func (a *App) Live() *monitor.LiveState { return a.live }

// Preferences returns the user settings backed by the settings store.
func (a *App) Preferences() *profile.Settings { return a.prefs }

// Catalog returns the profile catalog.
func (a *App) Catalog() *profile.Catalog { return a.catalog }

// Notifications returns the notification history store.
func (a *App) Notifications() store.NotificationStore { return a.notifications }

// Notifiers returns the alert fan-out. Sinks may be added after New.
func (a *App) Notifiers() *notify.Fanout { return a.fanout }

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of next. Profile edits replace the
// catalog; alert policy edits reach the running engine immediately and every
// later session.
func (a *App) Reload(d config.ConfigDiff, next *config.Config) error {
	var errs []error
	if d.ProfilesChanged {
		if err := a.catalog.Replace(next.Profiles); err != nil {
			errs = append(errs, fmt.Errorf("app: reload profiles: %w", err))
		} else {
			slog.Info("profiles reloaded", "changes", len(d.ProfileChanges))
		}
	}
	if d.AlertChanged {
		a.engineMu.Lock()
		a.alertCfg = next.Alert
		eng := a.engine
		a.engineMu.Unlock()
		if eng != nil {
			eng.SetConfig(next.Alert.EngineConfig())
		}
		slog.Info("alert policy reloaded")
	}
	return errors.Join(errs...)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API on the configured address and blocks until ctx is
// cancelled. If audio.autostart is set, a monitoring session is started
// first; a failure to start is logged and the API keeps serving.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Audio.Autostart {
		if _, err := a.sessions.Start(ctx, "autostart"); err != nil {
			slog.Error("autostart failed", "err", err)
		}
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the active session, flushes pending writes and tears down
// all subsystems in init order. It respects the context deadline: if ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.sessions.Stop(ctx); err != nil && !errors.Is(err, monitor.ErrNoSession) {
			slog.Warn("session stop error", "err", err)
		}
		if err := a.recorder.Wait(ctx); err != nil {
			slog.Warn("pending writes dropped", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases whatever New opened before failing.
func (a *App) runClosers() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
}
