package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/noisewatch/internal/classify"
	"github.com/MrWong99/noisewatch/internal/monitor"
)

// StatusSource provides the data rendered by the dashboard.
// *monitor.LiveState and *monitor.SessionManager together satisfy it through
// [StatusFuncs].
type StatusSource interface {
	Snapshot() monitor.Snapshot
	Session() monitor.SessionInfo
}

// StatusFuncs adapts two functions to [StatusSource].
type StatusFuncs struct {
	SnapshotFunc func() monitor.Snapshot
	SessionFunc  func() monitor.SessionInfo
}

// Snapshot implements [StatusSource].
func (f StatusFuncs) Snapshot() monitor.Snapshot { return f.SnapshotFunc() }

// Session implements [StatusSource].
func (f StatusFuncs) Session() monitor.SessionInfo { return f.SessionFunc() }

// defaultInterval is the refresh period when none is configured.
const defaultInterval = 10 * time.Second

// Dashboard keeps one status message in a channel up to date. The message is
// posted on the first refresh and edited afterwards, but only when what it
// shows has changed.
type Dashboard struct {
	sender    MessageSender
	channelID string
	interval  time.Duration
	source    StatusSource
	inference *classify.Stats

	mu        sync.Mutex
	messageID string
	shown     string // renderKey of the last posted embed
	stopped   bool
}

// DashboardConfig holds dependencies for creating a Dashboard.
type DashboardConfig struct {
	Sender    MessageSender
	ChannelID string
	Interval  time.Duration // Default: 10 seconds
	Source    StatusSource

	// Inference, when set, adds classifier latency to the embed.
	Inference *classify.Stats
}

// NewDashboard creates a Dashboard.
func NewDashboard(cfg DashboardConfig) *Dashboard {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Dashboard{
		sender:    cfg.Sender,
		channelID: cfg.ChannelID,
		interval:  cfg.Interval,
		source:    cfg.Source,
		inference: cfg.Inference,
	}
}

// Run refreshes the message every interval until ctx is done or Stop is
// called.
func (d *Dashboard) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		if !d.refresh(ctx, time.Now()) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop ends refreshing and marks the message offline. Later calls do nothing.
func (d *Dashboard) Stop(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.messageID == "" {
		return
	}
	if _, err := d.sender.ChannelMessageEditEmbed(d.channelID, d.messageID, buildOfflineEmbed(), discordgo.WithContext(ctx)); err != nil {
		slog.Warn("dashboard: post offline embed", "message_id", d.messageID, "err", err)
	}
}

// refresh posts or edits the status message. It reports false once the
// dashboard was stopped.
func (d *Dashboard) refresh(ctx context.Context, now time.Time) bool {
	snap := d.source.Snapshot()
	embed := buildStatusEmbed(snap, d.source.Session(), now)
	if d.inference != nil && snap.Monitoring {
		embed.Fields = append(embed.Fields, inferenceField(d.inference.Snapshot()))
	}
	key := renderKey(embed)

	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.stopped:
		return false
	case d.messageID == "":
		msg, err := d.sender.ChannelMessageSendComplex(d.channelID,
			&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}},
			discordgo.WithContext(ctx))
		if err != nil {
			slog.Warn("dashboard: post status message", "channel", d.channelID, "err", err)
			return true
		}
		d.messageID = msg.ID
		slog.Debug("dashboard: status message posted", "message_id", msg.ID, "channel", d.channelID)
	case key == d.shown:
		return true
	default:
		if _, err := d.sender.ChannelMessageEditEmbed(d.channelID, d.messageID, embed, discordgo.WithContext(ctx)); err != nil {
			slog.Warn("dashboard: edit status message", "message_id", d.messageID, "err", err)
			return true
		}
	}
	d.shown = key
	return true
}

// renderKey identifies what an embed shows, ignoring its timestamp.
func renderKey(e *discordgo.MessageEmbed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s", e.Color, e.Description)
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "|%s=%s", f.Name, f.Value)
	}
	return b.String()
}

// buildStatusEmbed renders the live status.
func buildStatusEmbed(snap monitor.Snapshot, info monitor.SessionInfo, now time.Time) *discordgo.MessageEmbed {
	if !snap.Monitoring {
		return &discordgo.MessageEmbed{
			Title:       "Noise Monitor",
			Description: "Monitoring is stopped.",
			Color:       embedColorGrey,
			Timestamp:   now.UTC().Format(time.RFC3339),
		}
	}

	level := fmt.Sprintf("%.1f dB", snap.Loudness)
	if snap.Suppressed {
		level += " (alert playing)"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Level", Value: level, Inline: true},
		{Name: "Sound", Value: string(snap.Label), Inline: true},
	}
	if info.SessionID != "" {
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: "Uptime", Value: formatDuration(now.Sub(info.StartedAt)), Inline: true},
			&discordgo.MessageEmbedField{Name: "Session ID", Value: fmt.Sprintf("`%s`", info.SessionID), Inline: false},
		)
	}
	return &discordgo.MessageEmbed{
		Title:     "Noise Monitor",
		Color:     embedColorGreen,
		Fields:    fields,
		Footer:    &discordgo.MessageEmbedFooter{Text: "Live"},
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// inferenceField renders classifier latency percentiles and the error count.
func inferenceField(s classify.StatsSnapshot) *discordgo.MessageEmbedField {
	value := "no windows yet"
	if s.Windows > 0 {
		value = fmt.Sprintf("p50 %s · p95 %s · %d/%d failed",
			s.P50.Round(time.Millisecond), s.P95.Round(time.Millisecond), s.Errors, s.Windows)
	}
	return &discordgo.MessageEmbedField{Name: "Inference", Value: value, Inline: false}
}

func buildOfflineEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Noise Monitor",
		Description: "The monitor is offline.",
		Color:       embedColorRed,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Offline"},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// formatDuration renders d as "2h 30m 5s", dropping leading zero units.
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, sec)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}
