package bridge

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/prana-tool/internal/config"
)

// Broker is the subset of MQTT the bridge needs.
type Broker interface {
	// Publish sends payload to topic at QoS 1.
	Publish(topic string, retained bool, payload []byte) error

	// Subscribe routes messages on topic to handler. Subscriptions survive
	// reconnects.
	Subscribe(topic string, handler func(topic string, payload []byte)) error

	Close() error
}

const publishTimeout = 5 * time.Second

// PahoBroker is a Broker backed by an actual MQTT connection.
type PahoBroker struct {
	client paho.Client
	log    logrus.FieldLogger

	mu   sync.Mutex
	subs map[string]func(string, []byte)
}

// DialPaho connects to the broker in cfg. willTopic receives a retained
// "offline" if the connection drops uncleanly.
func DialPaho(cfg config.MQTTConfig, willTopic string, log logrus.FieldLogger) (*PahoBroker, error) {
	b := &PahoBroker{
		log:  log.WithField("component", "mqtt"),
		subs: make(map[string]func(string, []byte)),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(willTopic, PayloadOffline, 1, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	// Subscriptions are (re)made on every connect so they survive a reconnect.
	opts.SetOnConnectHandler(func(c paho.Client) {
		b.log.Info("MQTT connected")
		b.mu.Lock()
		defer b.mu.Unlock()
		for topic, h := range b.subs {
			b.subscribe(c, topic, h)
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		b.log.WithError(err).Warn("MQTT connection lost")
	})

	b.client = paho.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	return b, nil
}

func (b *PahoBroker) Publish(topic string, retained bool, payload []byte) error {
	token := b.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *PahoBroker) Subscribe(topic string, handler func(string, []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = handler
	if !b.client.IsConnectionOpen() {
		return nil
	}
	return b.subscribe(b.client, topic, handler)
}

func (b *PahoBroker) subscribe(c paho.Client, topic string, handler func(string, []byte)) error {
	token := c.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		b.log.WithError(err).WithField("topic", topic).Warn("MQTT subscribe failed")
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, giving in-flight messages a second to drain.
func (b *PahoBroker) Close() error {
	b.client.Disconnect(1000)
	return nil
}
