// Package bridge exposes one ventilation unit to Home Assistant over MQTT.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/prana-tool/internal/api"
	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/state"
)

// DefaultAvailabilityInterval is how often freshness is re-checked.
const DefaultAvailabilityInterval = 15 * time.Second

// Options configures a Bridge.
type Options struct {
	TopicPrefix          string
	DiscoveryPrefix      string
	Name                 string
	AvailabilityInterval time.Duration
	Logger               logrus.FieldLogger

	// Lock serializes commands with other control surfaces. A private
	// lock is used when nil.
	Lock *sync.Mutex
}

// Bridge publishes device state and executes commands received over MQTT.
type Bridge struct {
	broker Broker
	client *api.Client
	log    logrus.FieldLogger

	id              string
	base            string
	discoveryPrefix string
	name            string
	device          deviceInfo
	interval        time.Duration

	cmdMu *sync.Mutex

	updates chan state.Snapshot

	mu        sync.Mutex
	available string
	sensors   map[string]string
}

// New creates a bridge for the device behind client.
func New(broker Broker, client *api.Client, opts Options) *Bridge {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "prana"
	}
	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = "homeassistant"
	}
	if opts.Name == "" {
		opts.Name = "Prana"
	}
	if opts.AvailabilityInterval <= 0 {
		opts.AvailabilityInterval = DefaultAvailabilityInterval
	}
	if opts.Lock == nil {
		opts.Lock = &sync.Mutex{}
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}

	address := client.Session().Address()
	id := DeviceID(address)
	return &Bridge{
		broker:          broker,
		client:          client,
		log:             log.WithFields(logrus.Fields{"component": "bridge", "device": id}),
		id:              id,
		base:            opts.TopicPrefix + "/" + id,
		discoveryPrefix: opts.DiscoveryPrefix,
		name:            opts.Name,
		device: deviceInfo{
			Identifiers:  []string{id},
			Name:         opts.Name,
			Manufacturer: "Prana",
			Connections:  [][2]string{{"bluetooth", strings.ToLower(address)}},
		},
		interval: opts.AvailabilityInterval,
		cmdMu:    opts.Lock,
		updates:  make(chan state.Snapshot, 1),
		sensors:  make(map[string]string),
	}
}

// DeviceID turns a hardware address into a topic-safe identifier.
func DeviceID(address string) string {
	id := strings.ToLower(strings.TrimSpace(address))
	id = strings.NewReplacer(":", "", "-", "").Replace(id)
	return "prana_" + id
}

func (b *Bridge) topic(suffix string) string {
	return b.base + "/" + suffix
}

// AvailabilityTopic is where online/offline is published for the device
// at address. It doubles as the broker's will topic.
func AvailabilityTopic(prefix, address string) string {
	return prefix + "/" + DeviceID(address) + "/availability"
}

func (b *Bridge) availabilityTopic() string {
	return b.topic("availability")
}

// Start registers entities and subscribes to the command topics.
func (b *Bridge) Start() error {
	if err := b.Register(); err != nil {
		return err
	}

	handlers := map[string]func(context.Context, string) error{
		"power/set":      b.handlePower,
		"percentage/set": b.handlePercentage,
		"preset/set":     b.handlePreset,
		"direction/set":  b.handleDirection,
		"brightness/set": b.handleBrightness,
	}
	for _, sw := range switchDefinitions {
		handlers[sw.key+"/set"] = b.switchHandler(sw.key)
	}

	for suffix, h := range handlers {
		if err := b.broker.Subscribe(b.topic(suffix), b.dispatch(h)); err != nil {
			return err
		}
	}
	return nil
}

// dispatch runs a command handler and publishes the resulting view.
func (b *Bridge) dispatch(h func(context.Context, string) error) func(string, []byte) {
	return func(topic string, payload []byte) {
		b.cmdMu.Lock()
		defer b.cmdMu.Unlock()

		value := strings.TrimSpace(string(payload))
		log := b.log.WithFields(logrus.Fields{"topic": topic, "payload": value})
		log.Debug("Received command")

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := h(ctx, value); err != nil {
			log.WithError(err).Warn("Command failed")
			return
		}
		v := b.client.View()
		if err := b.publishState(v.Status, v.Speed); err != nil {
			log.WithError(err).Warn("Publishing state failed")
		}
	}
}

func parseOnOff(payload string) (bool, error) {
	switch strings.ToUpper(payload) {
	case PayloadOn:
		return true, nil
	case PayloadOff:
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not %s or %s", api.ErrValueRange, payload, PayloadOn, PayloadOff)
}

func parseInt(payload string) (int, error) {
	n, err := strconv.Atoi(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", api.ErrValueRange, payload)
	}
	return n, nil
}

func (b *Bridge) handlePower(ctx context.Context, payload string) error {
	on, err := parseOnOff(payload)
	if err != nil {
		return err
	}
	return b.client.SetPower(ctx, on)
}

func (b *Bridge) handlePercentage(ctx context.Context, payload string) error {
	pct, err := parseInt(payload)
	if err != nil {
		return err
	}
	return b.client.SetSpeedPct(ctx, pct)
}

func (b *Bridge) handlePreset(ctx context.Context, payload string) error {
	return b.client.SetPresetMode(ctx, payload)
}

func (b *Bridge) handleDirection(ctx context.Context, payload string) error {
	d, err := api.ParseDirection(payload)
	if err != nil {
		return err
	}
	return b.client.SetDirection(ctx, d)
}

func (b *Bridge) handleBrightness(ctx context.Context, payload string) error {
	level, err := parseInt(payload)
	if err != nil {
		return err
	}
	return b.client.SetBrightness(ctx, level)
}

func (b *Bridge) switchHandler(key string) func(context.Context, string) error {
	return func(ctx context.Context, payload string) error {
		on, err := parseOnOff(payload)
		if err != nil {
			return err
		}
		switch key {
		case "heating":
			return b.client.SetHeating(ctx, on)
		case "winter":
			return b.client.SetWinterMode(ctx, on)
		case "auto":
			return b.client.SetAutoMode(ctx, on)
		case "night":
			return b.client.SetNightMode(ctx, on)
		case "flow_lock":
			return b.client.SetFlowsLocked(ctx, on)
		}
		return fmt.Errorf("unknown switch %q", key)
	}
}

func onOff(v bool) string {
	if v {
		return PayloadOn
	}
	return PayloadOff
}

// statePayload is the retained JSON document every entity templates from.
func statePayload(s protocol.Status, speed int) map[string]any {
	p := map[string]any{
		"state":      onOff(s.IsOn),
		"percentage": api.SpeedToPct(speed),
		"speed":      speed,
		"preset":     api.PresetManual,
		"brightness": s.Brightness,
	}
	if s.AutoMode {
		p["preset"] = api.PresetAuto
	}
	if d := api.DirectionOf(s, speed); d != "" {
		p["direction"] = string(d)
	}
	for _, sw := range switchDefinitions {
		p[sw.key] = onOff(sw.get(s))
	}
	return p
}

func (b *Bridge) publishState(s protocol.Status, speed int) error {
	payload, err := json.Marshal(statePayload(s, speed))
	if err != nil {
		return err
	}
	return b.broker.Publish(b.topic("state"), true, payload)
}

// publishSensors publishes readings that changed since the last frame.
func (b *Bridge) publishSensors(s *protocol.Sensors) error {
	if s == nil {
		return nil
	}
	for _, def := range sensorDefinitions {
		value := fmt.Sprintf("%v", def.get(s))

		b.mu.Lock()
		unchanged := b.sensors[def.key] == value
		b.mu.Unlock()
		if unchanged {
			continue
		}

		if err := b.broker.Publish(b.topic("sensor/"+def.key), true, []byte(value)); err != nil {
			return err
		}
		b.mu.Lock()
		b.sensors[def.key] = value
		b.mu.Unlock()
	}
	return nil
}

// HandleState publishes an applied frame.
func (b *Bridge) HandleState(snap state.Snapshot) error {
	if !snap.Known() {
		return nil
	}
	if err := b.publishState(*snap.Status, snap.Speed); err != nil {
		return err
	}
	if err := b.publishSensors(snap.Status.Sensors); err != nil {
		return err
	}
	return b.PublishAvailability(snap.Fresh)
}

// PublishAvailability publishes online or offline when it changes.
func (b *Bridge) PublishAvailability(fresh bool) error {
	payload := PayloadOffline
	if fresh {
		payload = PayloadOnline
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.available == payload {
		return nil
	}
	if err := b.broker.Publish(b.availabilityTopic(), true, []byte(payload)); err != nil {
		return err
	}
	b.log.WithField("availability", payload).Info("Availability changed")
	b.available = payload
	return nil
}

// Observe queues snap for publishing by Run. Only the newest pending
// snapshot is kept, so slow brokers never hold up notifications.
func (b *Bridge) Observe(snap state.Snapshot) {
	for {
		select {
		case b.updates <- snap:
			return
		default:
		}
		select {
		case <-b.updates:
		default:
		}
	}
}

// Run publishes queued snapshots and re-checks availability until ctx is
// done, then marks the device offline.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	model := b.client.Session().Model()
	if err := b.PublishAvailability(model.Fresh()); err != nil {
		b.log.WithError(err).Warn("Publishing availability failed")
	}

	for {
		select {
		case <-ctx.Done():
			if err := b.broker.Publish(b.availabilityTopic(), true, []byte(PayloadOffline)); err != nil {
				b.log.WithError(err).Warn("Publishing offline failed")
			}
			return nil
		case snap := <-b.updates:
			if err := b.HandleState(snap); err != nil {
				b.log.WithError(err).Warn("Publishing state failed")
			}
		case <-ticker.C:
			if err := b.PublishAvailability(model.Fresh()); err != nil {
				b.log.WithError(err).Warn("Publishing availability failed")
			}
		}
	}
}
