package announce

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/lowaak/smart-trainer/runbeat/internal/go_func_utils"
)

// DefaultTopic is the MQTT topic announcements are published on.
const DefaultTopic = "runbeat/announcements"

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker         string
	ClientID       string
	Topic          string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// publisher is the part of paho.Client used here.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// MQTTAnnouncer publishes announcements to a broker so a paired device can speak them.
// Publishing is asynchronous: Announce returns once the message is handed to the client.
type MQTTAnnouncer struct {
	client  publisher
	topic   string
	qos     byte
	timeout time.Duration
	logger  *zap.SugaredLogger
	closeFn func()

	inflight sync.WaitGroup

	mu      sync.Mutex
	lastErr error
}

// Verify MQTTAnnouncer implements Announcer
var _ Announcer = (*MQTTAnnouncer)(nil)

// DialMQTT connects to the broker described by opts.
func DialMQTT(opts MQTTOptions, logger *zap.SugaredLogger) (*MQTTAnnouncer, error) {
	if logger == nil {
		panic("MQTTAnnouncer: logger cannot be nil")
	}
	if opts.ClientID == "" {
		opts.ClientID = "runbeat"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warnw("MQTTAnnouncer: connection lost", "broker", opts.Broker, "error", err)
		})

	client := paho.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	logger.Infow("MQTTAnnouncer: connected", "broker", opts.Broker, "client_id", opts.ClientID)

	a := newMQTTAnnouncer(client, opts, logger)
	a.closeFn = func() { client.Disconnect(1000) }
	return a, nil
}

func newMQTTAnnouncer(client publisher, opts MQTTOptions, logger *zap.SugaredLogger) *MQTTAnnouncer {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	return &MQTTAnnouncer{
		client:  client,
		topic:   opts.Topic,
		qos:     opts.QoS,
		timeout: opts.PublishTimeout,
		logger:  logger,
	}
}

// Announce hands the announcement to the MQTT client and returns. Delivery is
// confirmed on a separate goroutine; failures are logged.
func (m *MQTTAnnouncer) Announce(a Announcement) {
	payload, err := FormatPayload(a)
	if err != nil {
		m.logger.Errorw("MQTTAnnouncer: format payload", "error", err)
		return
	}

	token := m.client.Publish(m.topic, m.qos, false, payload)
	m.inflight.Add(1)
	go_func_utils.SafeGo(m.logger, "mqtt-publish", func() {
		defer m.inflight.Done()
		if !token.WaitTimeout(m.timeout) {
			m.recordFailure(a, fmt.Errorf("publish timeout after %v", m.timeout))
			return
		}
		if err := token.Error(); err != nil {
			m.recordFailure(a, err)
			return
		}
		m.mu.Lock()
		m.lastErr = nil
		m.mu.Unlock()
		m.logger.Debugw("MQTTAnnouncer: published", "topic", m.topic, "mode", a.Mode, "zone", int(a.Zone))
	})
}

// LastError returns the error of the most recently completed publish, nil if it succeeded.
func (m *MQTTAnnouncer) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Close waits for in-flight publishes and disconnects when the announcer owns the client.
func (m *MQTTAnnouncer) Close() error {
	m.inflight.Wait()
	if m.closeFn != nil {
		m.closeFn()
	}
	return nil
}

func (m *MQTTAnnouncer) recordFailure(a Announcement, err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	m.logger.Warnw("MQTTAnnouncer: publish failed", "topic", m.topic, "mode", a.Mode, "zone", int(a.Zone), "error", err)
}
