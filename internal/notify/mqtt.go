package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/MrWong99/noisewatch/internal/alert"
	"github.com/MrWong99/noisewatch/internal/monitor"
)

// Default MQTT topics.
const (
	DefaultAlertTopic = "noisewatch/alerts"
	DefaultLevelTopic = "noisewatch/level"
)

// MQTTConfig holds MQTT connection and topic settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// AlertTopic receives one JSON message per alert.
	AlertTopic string `yaml:"alert_topic"`

	// LevelTopic receives the retained live level every LevelInterval.
	// Empty disables level publishing.
	LevelTopic    string        `yaml:"level_topic"`
	LevelInterval time.Duration `yaml:"level_interval"`

	QoS byte `yaml:"qos"`
}

// Connect opens a paho client with auto-reconnect.
func Connect(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		slog.Info("notify: mqtt connection established", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("notify: mqtt connection lost", "err", err)
	})
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("notify: connect to mqtt broker: %w", token.Error())
	}
	return client, nil
}

// TokenPublisher is the part of mqtt.Client the publisher needs.
type TokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// AlertMessage is the JSON payload published per alert.
type AlertMessage struct {
	NotificationID string    `json:"notificationId,omitempty"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Label          string    `json:"noiseType"`
	Class          string    `json:"class"`
	Loudness       float64   `json:"decibelLevel"`
	Threshold      float64   `json:"threshold"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewAlertMessage converts a decision to its wire form.
func NewAlertMessage(d alert.Decision) AlertMessage {
	return AlertMessage{
		NotificationID: d.Notification.ID,
		Title:          d.Title,
		Message:        d.Message,
		Label:          string(d.Label),
		Class:          d.Class.String(),
		Loudness:       d.Loudness,
		Threshold:      d.Threshold,
		Timestamp:      d.At,
	}
}

// Publisher publishes alerts and levels to MQTT topics.
type Publisher struct {
	client     TokenPublisher
	alertTopic string
	levelTopic string
	interval   time.Duration
	qos        byte
}

// NewPublisher returns a Publisher using client.
func NewPublisher(client TokenPublisher, cfg MQTTConfig) *Publisher {
	p := &Publisher{
		client:     client,
		alertTopic: cfg.AlertTopic,
		levelTopic: cfg.LevelTopic,
		interval:   cfg.LevelInterval,
		qos:        cfg.QoS,
	}
	if p.alertTopic == "" {
		p.alertTopic = DefaultAlertTopic
	}
	if p.interval <= 0 {
		p.interval = 5 * time.Second
	}
	return p
}

// Notify implements [Notifier].
func (p *Publisher) Notify(ctx context.Context, d alert.Decision) error {
	payload, err := json.Marshal(NewAlertMessage(d))
	if err != nil {
		return fmt.Errorf("notify: marshal alert: %w", err)
	}
	return p.publish(ctx, p.alertTopic, false, payload)
}

// RunLevels publishes the live snapshot to the level topic every interval
// until ctx is cancelled. It returns immediately when no level topic is set.
func (p *Publisher) RunLevels(ctx context.Context, live *monitor.LiveState) {
	if p.levelTopic == "" {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(live.Snapshot())
			if err != nil {
				slog.Warn("notify: marshal level", "err", err)
				continue
			}
			if err := p.publish(ctx, p.levelTopic, true, payload); err != nil {
				slog.Debug("notify: level publish failed", "err", err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, p.qos, retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("notify: publish to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("notify: publish to %s: %w", topic, err)
	}
	return nil
}
