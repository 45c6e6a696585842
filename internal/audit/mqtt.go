package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MrCodeEU/FaceGate/internal/access"
	"github.com/MrCodeEU/FaceGate/internal/config"
)

// ErrNotConnected is returned while the broker connection is down
var ErrNotConnected = errors.New("mqtt not connected")

const (
	publishTimeout = 2 * time.Second
	connectTimeout = 5 * time.Second
)

// Publisher sends events to an MQTT broker.
// Events go to <topic>/<door_id>/events; door transitions also update the
// retained <topic>/<door_id>/state message.
type Publisher struct {
	client    mqtt.Client
	cfg       config.EventsConfig
	sessionID string
	logger    logrus.FieldLogger

	mu        sync.Mutex
	published uint64
	errors    uint64
}

// ConnectPublisher dials the broker with auto-reconnect enabled
func ConnectPublisher(cfg config.EventsConfig, logger logrus.FieldLogger) (*Publisher, error) {
	sessionID := uuid.NewString()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(fmt.Sprintf("facegate-%s-%s", cfg.DoorID, sessionID[:8]))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		logger.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warnf("MQTT connection lost, reconnecting: %v", err)
	}

	client := mqtt.NewClient(opts)

	logger.Infof("Connecting to MQTT broker %s", cfg.Broker)
	if err := connect(client, connectTimeout); err != nil {
		return nil, err
	}

	return NewPublisher(client, cfg, sessionID, logger), nil
}

// connect waits for the first connection. On failure the client is disconnected
// so connect-retry stops in the background.
func connect(client mqtt.Client, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// NewPublisher wraps an already configured client
func NewPublisher(client mqtt.Client, cfg config.EventsConfig, sessionID string, logger logrus.FieldLogger) *Publisher {
	return &Publisher{
		client:    client,
		cfg:       cfg,
		sessionID: sessionID,
		logger:    logger,
	}
}

// EventTopic is where every event is published
func (p *Publisher) EventTopic() string {
	return fmt.Sprintf("%s/%s/events", p.cfg.Topic, p.cfg.DoorID)
}

// StateTopic carries the retained door state
func (p *Publisher) StateTopic() string {
	return fmt.Sprintf("%s/%s/state", p.cfg.Topic, p.cfg.DoorID)
}

// AlertTopic carries spoof alerts
func (p *Publisher) AlertTopic() string {
	return fmt.Sprintf("%s/%s/alerts", p.cfg.Topic, p.cfg.DoorID)
}

type alertMessage struct {
	DoorID   string    `json:"door_id" msgpack:"door_id"`
	Attempts int       `json:"attempts" msgpack:"attempts"`
	First    time.Time `json:"first" msgpack:"first"`
	Last     time.Time `json:"last" msgpack:"last"`
}

// PublishAlert sends a spoof alert. Failures are logged; there is no caller to return them to.
func (p *Publisher) PublishAlert(a Alert) {
	msg := alertMessage{DoorID: p.cfg.DoorID, Attempts: a.Attempts, First: a.First.UTC(), Last: a.Last.UTC()}

	var payload []byte
	var err error
	if p.cfg.Encoding == "msgpack" {
		payload, err = msgpack.Marshal(msg)
	} else {
		payload, err = json.Marshal(msg)
	}
	if err == nil {
		err = p.publish(p.AlertTopic(), false, payload)
	}
	if err != nil {
		p.logger.Warnf("Failed to publish spoof alert: %v", err)
	}
}

// Record implements Sink
func (p *Publisher) Record(ctx context.Context, ev access.Event) error {
	if !p.client.IsConnectionOpen() {
		p.countError()
		return ErrNotConnected
	}

	payload, err := NewMessage(ev, p.cfg.DoorID, p.sessionID).Encode(p.cfg.Encoding)
	if err != nil {
		p.countError()
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := p.publish(p.EventTopic(), false, payload); err != nil {
		return err
	}

	if ev.Action != access.ActionNone && ev.Actuation != access.ActuationFailed {
		if err := p.publish(p.StateTopic(), true, []byte(ev.Door.String())); err != nil {
			return err
		}
	}

	return nil
}

func (p *Publisher) publish(topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, p.cfg.QoS, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.countError()
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		p.countError()
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()

	p.logger.Debugf("Published %d bytes to %s", len(payload), topic)
	return nil
}

func (p *Publisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

// Stats returns published and failed message counts
func (p *Publisher) Stats() (published, failed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.errors
}

// Close implements Sink
func (p *Publisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
