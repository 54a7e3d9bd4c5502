// Package monitor runs the streaming loudness and alerting pipeline.
//
// A [Monitor] owns one monitoring session: it opens the microphone, reads
// blocks at a fixed cadence, publishes the smoothed loudness, dispatches full
// classification windows to the classifier in the background, feeds the
// alert engine and, when an alert fires, persists it, plays the cue and
// suppresses its own input while the cue is audible.
//
// [SessionManager] starts and stops sessions on behalf of the HTTP API.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/noisewatch/internal/alert"
	"github.com/MrWong99/noisewatch/internal/feedback"
	"github.com/MrWong99/noisewatch/internal/loudness"
	"github.com/MrWong99/noisewatch/internal/observe"
	"github.com/MrWong99/noisewatch/internal/store"
	"github.com/MrWong99/noisewatch/internal/window"
	"github.com/MrWong99/noisewatch/pkg/audio"
	"github.com/MrWong99/noisewatch/pkg/types"
)

// ErrMonitoringUnavailable is returned by [Monitor.Run] when the audio input
// cannot be opened. The session does not start and is not retried.
var ErrMonitoringUnavailable = errors.New("monitor: monitoring unavailable")

// Default cadences.
const (
	DefaultInterval       = 20 * time.Millisecond
	DefaultEventInterval  = 30 * time.Second
	DefaultStatusInterval = time.Second
	DefaultFrameSize      = 1600

	notifyTimeout = 10 * time.Second
)

// Classifier labels one classification window.
type Classifier interface {
	Classify(ctx context.Context, window []float32) (types.NoiseLabel, error)
}

// Cue is the alert sound.
type Cue interface {
	Play(ctx context.Context) error

	// Duration reports the cue length; ok is false when it is unknown.
	Duration() (d time.Duration, ok bool)
}

// Recorder persists events and notifications without blocking. store.Guard
// implements it.
type Recorder interface {
	LogEvent(ev types.NoiseEvent)
	SaveNotification(n types.NotificationItem)
}

// Notifier pushes a fired alert to an external channel.
type Notifier interface {
	Notify(ctx context.Context, d alert.Decision) error
}

// Config holds the dependencies of a [Monitor]. Capturer, Classifier and
// Engine are required.
type Config struct {
	Capturer   audio.Capturer
	Classifier Classifier
	Engine     *alert.Engine

	// Cue is optional. Without a cue the suppression window falls back to
	// its fixed length.
	Cue Cue

	// Recorder is optional; without one nothing is persisted.
	Recorder Recorder

	// Notifier is optional.
	Notifier Notifier

	// Live receives published values. A fresh LiveState is created if nil.
	Live *LiveState

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// ProcessedOnly opens the processed source directly instead of trying
	// the unprocessed one first.
	ProcessedOnly bool

	// FrameSize is the number of samples per read. Default: [DefaultFrameSize].
	FrameSize int

	// WindowSize is the classification window length. Default: window.Size.
	WindowSize int

	Interval       time.Duration
	EventInterval  time.Duration
	StatusInterval time.Duration

	// Now overrides the clock used for periodic persistence. Intended for
	// tests.
	Now func() time.Time
}

// Monitor runs one monitoring session. Create one per session with [New].
type Monitor struct {
	cfg   Config
	live  *LiveState
	met   *observe.Metrics
	guard *feedback.Guard
	now   func() time.Time
	src   audio.Source

	// bg tracks inference and notifier goroutines.
	bg sync.WaitGroup
}

// New creates a Monitor.
func New(cfg Config) *Monitor {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = window.Size
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.EventInterval <= 0 {
		cfg.EventInterval = DefaultEventInterval
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	m := &Monitor{
		cfg:  cfg,
		live: cfg.Live,
		met:  cfg.Metrics,
		now:  cfg.Now,
	}
	if m.live == nil {
		m.live = NewLiveState()
	}
	if m.met == nil {
		m.met = observe.DefaultMetrics()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.guard = feedback.New(feedback.WithOnDisengage(cfg.Engine.Reset))
	return m
}

// Live returns the state this monitor publishes to.
func (m *Monitor) Live() *LiveState { return m.live }

// Guard returns the feedback guard of this session.
func (m *Monitor) Guard() *feedback.Guard { return m.guard }

// Run opens the audio input and processes it until ctx is cancelled, the
// source ends (io.EOF) or a read fails. Cancellation and end of input return
// nil. Failing to open the input returns an error wrapping
// [ErrMonitoringUnavailable].
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Open(ctx); err != nil {
		return err
	}
	return m.Serve(ctx)
}

// Open acquires the audio input, preferring the unprocessed source. It
// returns an error wrapping [ErrMonitoringUnavailable] when no input can be
// opened.
func (m *Monitor) Open(ctx context.Context) error {
	cc := audio.CaptureConfig{
		Format:    audio.MonitorFormat,
		FrameSize: m.cfg.FrameSize,
	}
	var (
		src audio.Source
		err error
	)
	if m.cfg.ProcessedOnly {
		cc.Kind = audio.SourceProcessed
		src, err = m.cfg.Capturer.Open(ctx, cc)
	} else {
		src, err = audio.OpenPreferred(ctx, m.cfg.Capturer, cc)
	}
	if err != nil {
		m.live.setMonitoring(false)
		return fmt.Errorf("%w: %w", ErrMonitoringUnavailable, err)
	}
	m.src = src
	return nil
}

// Serve processes the input acquired by [Monitor.Open] until ctx is
// cancelled, the source ends or a read fails. The source is closed on
// return.
func (m *Monitor) Serve(ctx context.Context) error {
	src := m.src
	if src == nil {
		return fmt.Errorf("%w: input not opened", ErrMonitoringUnavailable)
	}

	// Closing the source unblocks a pending Read on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer func() {
		stop()
		_ = src.Close()
		m.guard.Stop()
		m.bg.Wait()
		m.live.setMonitoring(false)
		m.met.ActiveSessions.Add(context.Background(), -1)
		observe.Logger(ctx).Info("monitor: session ended")
	}()

	m.cfg.Engine.Reset()
	m.live.setMonitoring(true)
	m.met.ActiveSessions.Add(ctx, 1)
	observe.Logger(ctx).Info("monitor: session started", "format", src.Format().String(), "frame_size", m.cfg.FrameSize)

	return m.loop(ctx, src)
}

// loop is the read, estimate, classify, decide cycle.
func (m *Monitor) loop(ctx context.Context, src audio.Source) error {
	var (
		est        = loudness.New()
		win        = window.New(m.cfg.WindowSize)
		conv       = &audio.Converter{Target: audio.MonitorFormat}
		buf        = make([]int16, m.cfg.FrameSize)
		lastEvent  time.Time
		lastStatus time.Time
		tick       = time.NewTimer(0)
	)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}

		n, err := src.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("monitor: read: %w", err)
		}
		tick.Reset(m.cfg.Interval)
		if n <= 0 {
			continue
		}
		block := conv.Convert(buf[:n], src.Format())

		if m.guard.IsEngaged() {
			m.live.publishLoudness(loudness.Floor, true)
			m.met.FramesSuppressed.Add(ctx, 1)
			continue
		}

		db := est.Estimate(block, len(block))
		m.live.publishLoudness(db, false)
		m.met.Loudness.Record(ctx, db)

		if d, fired := m.cfg.Engine.Evaluate(db, m.live.Label()); fired {
			m.fire(ctx, d)
		}

		if w, full := win.Push(block); full {
			m.classify(ctx, w)
		}

		now := m.now()
		if now.Sub(lastStatus) >= m.cfg.StatusInterval {
			m.live.setStatus(fmt.Sprintf("Current Level: %.1f dB", db))
			lastStatus = now
		}
		if now.Sub(lastEvent) >= m.cfg.EventInterval {
			m.record(types.NoiseEvent{
				Timestamp:    now,
				DecibelLevel: db,
				IsAlert:      false,
				NoiseType:    m.live.Label(),
			})
			lastEvent = now
		}
	}
}

// classify runs inference on w in the background. Results race and the last
// one to finish wins; a failed run keeps the cached label.
func (m *Monitor) classify(ctx context.Context, w []float32) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		sctx, span := observe.StartSpan(ctx, observe.SpanInference)
		start := time.Now()
		label, err := m.cfg.Classifier.Classify(sctx, w)
		m.met.RecordInference(sctx, time.Since(start).Seconds(), string(label), err)
		span.SetAttributes(observe.LabelKey.String(string(label)))
		observe.EndSpan(span, err)
		if err != nil {
			if ctx.Err() == nil {
				observe.Logger(sctx).Warn("monitor: classification failed, keeping previous label", "err", err)
			}
			return
		}
		m.live.publishLabel(label)
	}()
}

// fire handles a fired alert: persist, play the cue, engage the guard and
// push to notifiers.
func (m *Monitor) fire(ctx context.Context, d alert.Decision) {
	ctx, span := observe.StartSpan(ctx, observe.SpanAlert,
		observe.LabelKey.String(string(d.Label)),
		observe.LoudnessKey.Float64(d.Loudness),
		observe.ThresholdKey.Float64(d.Threshold),
		observe.AlertClass.String(d.Class.String()),
	)
	defer span.End()

	log := observe.Logger(ctx)
	log.Info("monitor: alert fired",
		"label", d.Label,
		"loudness", d.Loudness,
		"threshold", d.Threshold,
		"class", d.Class.String(),
	)
	m.met.RecordAlert(ctx, string(d.Label), d.Class.String())

	// Ids are assigned here so notifiers can reference the stored records.
	d.Notification.ID = store.NewID()
	d.Event.ID = store.NewID()

	if m.cfg.Recorder != nil {
		m.cfg.Recorder.SaveNotification(d.Notification)
	}
	m.record(d.Event)

	var (
		cueLen time.Duration
		known  bool
	)
	if m.cfg.Cue != nil {
		cueLen, known = m.cfg.Cue.Duration()
		if err := m.cfg.Cue.Play(ctx); err != nil {
			span.RecordError(err)
			log.Warn("monitor: alert cue failed", "err", err)
		}
	}
	m.guard.Engage(feedback.EngagementFor(cueLen, known))

	if m.cfg.Notifier != nil {
		m.bg.Add(1)
		go func() {
			defer m.bg.Done()
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
			defer cancel()
			if err := m.cfg.Notifier.Notify(nctx, d); err != nil {
				log.Warn("monitor: alert notification failed", "err", err)
			}
		}()
	}
}

func (m *Monitor) record(ev types.NoiseEvent) {
	if m.cfg.Recorder != nil {
		m.cfg.Recorder.LogEvent(ev)
	}
}
