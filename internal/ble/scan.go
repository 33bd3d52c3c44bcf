package ble

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// Advertisement is one unit seen during discovery.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16
}

// IsPranaName reports whether an advertised local name belongs to a unit.
func IsPranaName(name string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(name)), "PRANA")
}

// Discover scans for timeout (or until ctx ends) and returns every unit
// seen, strongest signal first. Each address is reported once.
func (t *Transport) Discover(ctx context.Context, timeout time.Duration) ([]Advertisement, error) {
	if err := t.enable(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = t.scanTimeout
	}

	stop := func() { _ = t.adapter.StopScan() }
	timer := time.AfterFunc(timeout, stop)
	defer timer.Stop()
	cancelWatch := context.AfterFunc(ctx, stop)
	defer cancelWatch()

	var (
		mu   sync.Mutex
		seen = make(map[string]Advertisement)
	)
	err := t.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		name := result.LocalName()
		if !IsPranaName(name) {
			return
		}
		addr := normalize(result.Address.String())
		t.mu.Lock()
		t.rssi[addr] = result.RSSI
		t.mu.Unlock()

		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[addr]; !ok {
			t.log.Debugf("Found: '%s' (%s) rssi %d", name, addr, result.RSSI)
		}
		seen[addr] = Advertisement{Address: addr, Name: name, RSSI: result.RSSI}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %w", ErrTransport, err)
	}

	mu.Lock()
	defer mu.Unlock()
	return sortByRSSI(seen), nil
}

func sortByRSSI(seen map[string]Advertisement) []Advertisement {
	out := make([]Advertisement, 0, len(seen))
	for _, a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}
