// Package daemon runs the long-lived bridge: polling, MQTT, HTTP and
// telemetry around one session.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vitaminmoo/prana-tool/internal/api"
	"github.com/vitaminmoo/prana-tool/internal/bridge"
	"github.com/vitaminmoo/prana-tool/internal/config"
	"github.com/vitaminmoo/prana-tool/internal/httpapi"
	"github.com/vitaminmoo/prana-tool/internal/state"
	"github.com/vitaminmoo/prana-tool/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// Options wires optional collaborators. Nil fields are built from Config
// when the matching section is enabled.
type Options struct {
	Config *config.Config
	Broker bridge.Broker
	Points telemetry.PointWriter
	Logger logrus.FieldLogger
}

// Run serves until ctx is done, then tears everything down and stops the
// session.
func Run(ctx context.Context, client *api.Client, opts Options) error {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = config.Log
	}
	sess := client.Session()
	log = log.WithField("address", sess.Address())

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sess.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("Stopping session failed")
		}
		log.Info("Session stopped")
	}()

	var observers []func(state.Snapshot)

	switch {
	case opts.Points != nil:
		observers = append(observers, telemetry.NewRecorder(opts.Points, sess.Address()).Record)
	case cfg.InfluxDB.Enabled:
		influx, err := telemetry.Connect(cfg.InfluxDB, sess.Address(), log)
		if err != nil {
			return err
		}
		defer influx.Close()
		observers = append(observers, influx.Record)
		log.WithField("url", cfg.InfluxDB.URL).Info("Recording telemetry")
	}

	// Commands from every surface and the poller take turns on this.
	var lock sync.Mutex

	broker := opts.Broker
	var br *bridge.Bridge
	if broker != nil || cfg.MQTT.Enabled {
		if broker == nil {
			will := bridge.AvailabilityTopic(cfg.MQTT.TopicPrefix, sess.Address())
			paho, err := bridge.DialPaho(cfg.MQTT, will, log)
			if err != nil {
				return err
			}
			broker = paho
		}
		defer broker.Close()

		br = bridge.New(broker, client, bridge.Options{
			TopicPrefix:     cfg.MQTT.TopicPrefix,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			Name:            cfg.Device.Name,
			Logger:          log,
			Lock:            &lock,
		})
		if err := br.Start(); err != nil {
			return fmt.Errorf("start bridge: %w", err)
		}
		observers = append(observers, br.Observe)
	}

	sess.OnStateChange(func(snap state.Snapshot) {
		for _, fn := range observers {
			fn(snap)
		}
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		Poll(ctx, client, &lock, cfg.Device.PollInterval, log)
		return nil
	})

	if br != nil {
		g.Go(func() error { return br.Run(ctx) })
	}

	if cfg.HTTP.Enabled {
		srv := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           httpapi.New(client, &lock, log).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.WithField("listen", cfg.HTTP.Listen).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Info("Serving")
	return g.Wait()
}

// Poll refreshes the device state immediately and then every interval.
// A tick is skipped while a command holds lock, since the command reads
// the state itself. Failures are logged; the next tick tries again.
func Poll(ctx context.Context, client *api.Client, lock *sync.Mutex, interval time.Duration, log logrus.FieldLogger) {
	if interval <= 0 {
		interval = config.Default().Device.PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if lock.TryLock() {
			err := client.Refresh(ctx)
			lock.Unlock()
			if err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("Polling device failed")
			}
		} else {
			log.Debug("Command in progress, skipping poll")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
