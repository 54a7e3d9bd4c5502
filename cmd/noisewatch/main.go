// Command noisewatch is the main entry point for the noisewatch ambient noise
// monitor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/noisewatch/internal/app"
	"github.com/MrWong99/noisewatch/internal/classify"
	"github.com/MrWong99/noisewatch/internal/config"
	"github.com/MrWong99/noisewatch/internal/cue"
	discordbot "github.com/MrWong99/noisewatch/internal/discord"
	"github.com/MrWong99/noisewatch/internal/discord/commands"
	"github.com/MrWong99/noisewatch/internal/health"
	"github.com/MrWong99/noisewatch/internal/notify"
	"github.com/MrWong99/noisewatch/internal/observe"
	"github.com/MrWong99/noisewatch/internal/resilience"
	"github.com/MrWong99/noisewatch/pkg/audio"
	"github.com/MrWong99/noisewatch/pkg/audio/portaudio"
	"github.com/MrWong99/noisewatch/pkg/audio/replay"
	"github.com/MrWong99/noisewatch/pkg/provider/classifier"
	"github.com/MrWong99/noisewatch/pkg/provider/classifier/onnx"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config is parsed")
	flag.Parse()

	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "noisewatch: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so a config reload can change it.
	var level slog.LevelVar
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	// ── Load configuration (and watch for changes) ────────────────────────────
	var current atomic.Pointer[app.App]
	watcher, err := config.NewWatcher(*configPath, func(r config.Reload) {
		if r.Diff.LogLevelChanged {
			level.Set(slogLevel(r.Diff.NewLogLevel))
			slog.Info("log level changed", "level", r.Diff.NewLogLevel)
		}
		application := current.Load()
		if application == nil {
			return
		}
		if err := application.Reload(r.Diff, r.New); err != nil {
			slog.Error("config reload failed", "err", err)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "noisewatch: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "noisewatch: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("noisewatch starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "noisewatch",
		ServiceVersion: version,
		Attributes: []attribute.KeyValue{
			attribute.String("noise.audio_provider", cfg.Audio.Provider),
			attribute.String("noise.classifier_provider", cfg.Classifier.Provider),
		},
		SampleRatio: cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	inference := classify.NewStats(0)
	providers, closeProviders, err := buildProviders(cfg, reg, inference)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders()

	// ── Notifiers ─────────────────────────────────────────────────────────────
	var opts []app.Option

	var publisher *notify.Publisher
	if mc := cfg.Notify.MQTT; mc.Broker != "" {
		client, err := notify.Connect(mqttConfig(mc))
		if err != nil {
			slog.Error("failed to connect to mqtt broker", "err", err)
			return 1
		}
		defer client.Disconnect(250)
		publisher = notify.NewPublisher(client, mqttConfig(mc))
		opts = append(opts, app.WithNotifier("mqtt", publisher))
		slog.Info("mqtt publisher connected", "broker", mc.Broker)
	}

	var bot *discordbot.Bot
	if dc := cfg.Notify.Discord; dc.Token != "" {
		bot, err = discordbot.New(ctx, discordbot.Config{
			Token:        dc.Token,
			GuildID:      dc.GuildID,
			ChannelID:    dc.ChannelID,
			ManagerRoles: dc.ManagerRoles,
		})
		if err != nil {
			slog.Error("failed to create Discord bot", "err", err)
			return 1
		}
		opts = append(opts,
			app.WithNotifier("discord", discordbot.NewAlertSink(bot.Session(), bot.ChannelID())),
			app.WithReadinessCheck(health.Checker{Name: "discord", Check: bot.Check, Optional: true}),
		)
		slog.Info("discord bot connected", "guild_id", dc.GuildID)
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		if bot != nil {
			_ = bot.Close()
		}
		return 1
	}
	current.Store(application)

	var dashboard *discordbot.Dashboard
	if bot != nil {
		commands.NewNoiseCommands(bot.Router(), commands.NoiseConfig{
			Sessions:    application.Sessions(),
			Live:        application.Live(),
			Preferences: application.Preferences(),
			Catalog:     application.Catalog(),
			Acks:        application.Notifications(),
			Access:      bot.Access(),
		})
		if interval := cfg.Notify.Discord.DashboardInterval; interval > 0 {
			dashboard = discordbot.NewDashboard(discordbot.DashboardConfig{
				Sender:    bot.Session(),
				ChannelID: bot.ChannelID(),
				Interval:  interval,
				Inference: inference,
				Source: discordbot.StatusFuncs{
					SnapshotFunc: application.Live().Snapshot,
					SessionFunc:  application.Sessions().Info,
				},
			})
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	if bot != nil {
		g.Go(func() error { return bot.Run(gctx) })
	}
	if dashboard != nil {
		g.Go(func() error {
			dashboard.Run(gctx)
			return nil
		})
	}
	if publisher != nil && cfg.Notify.MQTT.LevelTopic != "" {
		g.Go(func() error {
			publisher.RunLevels(gctx, application.Live())
			return nil
		})
	}

	exitCode := 0
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exitCode = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if dashboard != nil {
		dashboard.Stop(shutdownCtx)
	}
	if bot != nil {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return exitCode
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the capture and classifier factories that
// ship with noisewatch into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterAudio("portaudio", func(ac config.AudioConfig) (audio.Capturer, error) {
		var opts []portaudio.Option
		if ac.Device != "" {
			opts = append(opts, portaudio.WithDevice(ac.Device))
		}
		return portaudio.New(opts...), nil
	})

	reg.RegisterAudio("replay", func(ac config.AudioConfig) (audio.Capturer, error) {
		raw := audio.Format{SampleRate: ac.SampleRate, Channels: 1}
		return replay.New(ac.ReplayFile, raw,
			replay.WithLoop(ac.ReplayLoop),
			replay.WithRealtime(true),
		), nil
	})

	reg.RegisterClassifier("onnx", func(entry config.EngineEntry) (classifier.Engine, error) {
		var opts []onnx.Option
		if entry.LibraryPath != "" {
			opts = append(opts, onnx.WithSharedLibrary(entry.LibraryPath))
		}
		return onnx.New(entry.ModelPath, opts...)
	})

	slog.Debug("providers registered", "audio", reg.AudioProviders(), "classifier", reg.ClassifierProviders())
}

// buildProviders instantiates the capturer, the classifier chain and the
// alert cue. Every inference is recorded in stats. The returned func
// releases everything that holds native resources.
func buildProviders(cfg *config.Config, reg *config.Registry, stats *classify.Stats) (*app.Providers, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}
	fail := func(err error) (*app.Providers, func(), error) {
		closeAll()
		return nil, func() {}, err
	}

	ps := &app.Providers{}

	capturer, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		return fail(fmt.Errorf("create audio provider %q: %w", cfg.Audio.Provider, err))
	}
	ps.Capturer = capturer
	slog.Info("provider created", "kind", "audio", "name", cfg.Audio.Provider)

	primary, err := reg.CreateClassifier(cfg.Classifier.EngineEntry)
	if err != nil {
		return fail(fmt.Errorf("create classifier %q: %w", cfg.Classifier.Provider, err))
	}
	engine := resilience.NewClassifierFallback(primary, cfg.Classifier.Provider, resilience.FallbackConfig{
		Breaker: resilience.BreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				observe.DefaultMetrics().RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	})
	closers = append(closers, engine.Close)
	ps.Checks = append(ps.Checks, health.Checker{Name: "classifier", Check: engine.Check, Optional: true})
	slog.Info("provider created", "kind", "classifier", "name", cfg.Classifier.Provider)

	for i, entry := range cfg.Classifier.Fallbacks {
		fb, err := reg.CreateClassifier(entry)
		if err != nil {
			return fail(fmt.Errorf("create classifier fallback %d (%q): %w", i, entry.Provider, err))
		}
		name := fmt.Sprintf("%s#%d", entry.Provider, i+1)
		if err := engine.AddFallback(name, fb); err != nil {
			_ = fb.Close()
			return fail(fmt.Errorf("add classifier fallback %q: %w", name, err))
		}
		slog.Info("provider created", "kind", "classifier-fallback", "name", name)
	}

	labels, err := classifier.LoadLabelsFile(cfg.Classifier.LabelPath)
	if err != nil {
		return fail(fmt.Errorf("load labels: %w", err))
	}
	classifyOpts := []classify.Option{classify.WithStats(stats)}
	if cfg.Classifier.MinConfidence > 0 {
		classifyOpts = append(classifyOpts, classify.WithMinConfidence(cfg.Classifier.MinConfidence))
	}
	ps.Classifier = classify.New(engine, labels, classifyOpts...)

	if path := cfg.Cue.Path; path != "" {
		clip, err := cue.Load(path)
		if err != nil {
			return fail(err)
		}
		var out audio.Player
		if !cfg.Cue.Mute {
			player, err := portaudio.NewPlayer()
			if err != nil {
				return fail(fmt.Errorf("open cue output: %w", err))
			}
			closers = append(closers, player.Close)
			out = player
		}
		ps.Cue = cue.New(out, clip)
		slog.Info("alert cue loaded", "path", path, "muted", cfg.Cue.Mute)
	}

	return ps, closeAll, nil
}

// mqttConfig converts the config section to the publisher's settings.
func mqttConfig(mc config.MQTTConfig) notify.MQTTConfig {
	return notify.MQTTConfig{
		Broker:        mc.Broker,
		ClientID:      mc.ClientID,
		Username:      mc.Username,
		Password:      mc.Password,
		AlertTopic:    mc.AlertTopic,
		LevelTopic:    mc.LevelTopic,
		LevelInterval: mc.LevelInterval,
		QoS:           mc.QoS,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      noisewatch - startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Audio", cfg.Audio.Provider)
	printRow("Classifier", cfg.Classifier.Provider)
	printRow("Fallbacks", fmt.Sprint(len(cfg.Classifier.Fallbacks)))
	printRow("Profiles", fmt.Sprint(len(cfg.Profiles)))
	printRow("History", enabled(cfg.Storage.PostgresDSN != "", "postgres", "memory"))
	printRow("Settings", enabled(cfg.Storage.BadgerDir != "", "badger", "memory"))
	printRow("Analytics", enabled(cfg.Storage.ClickHouse.Addr != "", "clickhouse", "(disabled)"))
	printRow("Discord", enabled(cfg.Notify.Discord.Token != "", "connected", "(disabled)"))
	printRow("MQTT", enabled(cfg.Notify.MQTT.Broker != "", cfg.Notify.MQTT.Broker, "(disabled)"))
	printRow("WebSocket", enabled(cfg.Notify.WebSocket.Enabled, "/ws", "(disabled)"))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func enabled(on bool, yes, no string) string {
	if on {
		return yes
	}
	return no
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
