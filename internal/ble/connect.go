package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/vitaminmoo/prana-tool/internal/session"
)

// DefaultScanTimeout bounds the scan that precedes every connect.
const DefaultScanTimeout = 20 * time.Second

// Transport implements session.Transport on a host Bluetooth adapter.
type Transport struct {
	adapter     *bluetooth.Adapter
	scanTimeout time.Duration
	log         logrus.FieldLogger

	enableOnce sync.Once
	enableErr  error

	mu           sync.Mutex
	rssi         map[string]int16
	onDisconnect map[string]func()
}

// NewTransport uses the default adapter. A zero scanTimeout selects
// DefaultScanTimeout.
func NewTransport(scanTimeout time.Duration, log logrus.FieldLogger) *Transport {
	if scanTimeout <= 0 {
		scanTimeout = DefaultScanTimeout
	}
	return &Transport{
		adapter:      bluetooth.DefaultAdapter,
		scanTimeout:  scanTimeout,
		log:          log.WithField("component", "ble"),
		rssi:         make(map[string]int16),
		onDisconnect: make(map[string]func()),
	}
}

func (t *Transport) enable() error {
	t.enableOnce.Do(func() {
		if err := t.adapter.Enable(); err != nil {
			t.enableErr = fmt.Errorf("%w: enabling adapter: %w", ErrTransport, err)
			return
		}
		t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected {
				return
			}
			key := normalize(device.Address.String())
			t.mu.Lock()
			fn := t.onDisconnect[key]
			delete(t.onDisconnect, key)
			t.mu.Unlock()
			if fn != nil {
				fn()
			}
		})
	})
	return t.enableErr
}

// Dial scans for address, connects, and returns the control characteristic.
func (t *Transport) Dial(ctx context.Context, address string, onDisconnect func()) (session.Conn, error) {
	if err := t.enable(); err != nil {
		return nil, err
	}

	result, err := t.scan(ctx, address)
	if err != nil {
		return nil, err
	}

	t.log.WithField("address", address).Debug("Connecting")
	device, err := t.connect(ctx, result.Address)
	if err != nil {
		return nil, err
	}

	conn, err := setup(device, t.log.WithField("address", address))
	if err != nil {
		_ = device.Disconnect()
		return nil, err
	}

	t.mu.Lock()
	t.onDisconnect[normalize(address)] = onDisconnect
	t.mu.Unlock()
	return conn, nil
}

// RSSI returns the strength seen in the most recent scan for address.
func (t *Transport) RSSI(address string) (int16, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.rssi[normalize(address)]
	return v, ok
}

// scan runs until address is seen, the scan timeout passes or ctx ends.
func (t *Transport) scan(ctx context.Context, address string) (bluetooth.ScanResult, error) {
	want := normalize(address)

	var (
		found  bluetooth.ScanResult
		seen   bool
		doneMu sync.Mutex
	)

	stop := func() { _ = t.adapter.StopScan() }
	timer := time.AfterFunc(t.scanTimeout, stop)
	defer timer.Stop()
	cancelWatch := context.AfterFunc(ctx, stop)
	defer cancelWatch()

	t.log.WithField("address", address).Debugf("Scanning (timeout %s)", t.scanTimeout)
	err := t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		addr := normalize(result.Address.String())
		if name := result.LocalName(); name != "" {
			t.log.Debugf("Found: '%s' (%s) rssi %d", name, addr, result.RSSI)
		}
		t.mu.Lock()
		t.rssi[addr] = result.RSSI
		t.mu.Unlock()

		if addr != want {
			return
		}
		doneMu.Lock()
		found, seen = result, true
		doneMu.Unlock()
		_ = adapter.StopScan()
	})
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("%w: scan: %w", ErrTransport, err)
	}
	if ctx.Err() != nil {
		return bluetooth.ScanResult{}, ctx.Err()
	}

	doneMu.Lock()
	defer doneMu.Unlock()
	if !seen {
		return bluetooth.ScanResult{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
	}
	return found, nil
}

// connect runs the blocking adapter call so ctx can abandon it. A
// connection that completes after ctx ended is closed again.
func (t *Transport) connect(ctx context.Context, addr bluetooth.Address) (bluetooth.Device, error) {
	type result struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		d, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{
			ConnectionTimeout: bluetooth.NewDuration(t.scanTimeout),
		})
		ch <- result{d, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return bluetooth.Device{}, fmt.Errorf("%w: connect: %w", ErrTransport, r.err)
		}
		return r.device, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				_ = r.device.Disconnect()
			}
		}()
		return bluetooth.Device{}, ctx.Err()
	}
}

// setup finds the control characteristic on a fresh connection.
func setup(device bluetooth.Device, log logrus.FieldLogger) (*Conn, error) {
	log.Debug("Discovering services...")

	services, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: discovering services: %w", ErrTransport, err)
	}

	var svc *bluetooth.DeviceService
	for i := range services {
		uuidStr := services[i].UUID().String()
		if strings.EqualFold(uuidStr, ServiceUUID) {
			svc = &services[i]
			log.Debugf("Found service: %s", uuidStr)
			break
		}
	}
	if svc == nil {
		return nil, fmt.Errorf("%w: service %s missing", ErrNoCharacteristic, ServiceUUID)
	}

	chars, err := svc.DiscoverCharacteristics(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: discovering characteristics: %w", ErrTransport, err)
	}
	for i := range chars {
		uuidStr := chars[i].UUID().String()
		log.Debugf("Found characteristic: %s", uuidStr)
		if strings.EqualFold(uuidStr, ControlCharUUID) {
			return &Conn{device: device, char: &chars[i], log: log}, nil
		}
	}
	return nil, ErrNoCharacteristic
}

func normalize(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}
