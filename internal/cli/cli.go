package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vitaminmoo/prana-tool/internal/api"
	"github.com/vitaminmoo/prana-tool/internal/ble"
	"github.com/vitaminmoo/prana-tool/internal/commands"
	"github.com/vitaminmoo/prana-tool/internal/config"
	"github.com/vitaminmoo/prana-tool/internal/daemon"
	"github.com/vitaminmoo/prana-tool/internal/protocol"
	"github.com/vitaminmoo/prana-tool/internal/retry"
	"github.com/vitaminmoo/prana-tool/internal/session"
	"github.com/vitaminmoo/prana-tool/internal/state"
	"github.com/vitaminmoo/prana-tool/internal/tui"
)

// CLI is the root command structure for prana.
type CLI struct {
	Verbose bool   `short:"v" help:"Enable verbose debug output"`
	Config  string `short:"c" type:"path" env:"PRANA_CONFIG" help:"YAML configuration file"`
	Address string `short:"a" help:"Bluetooth address of the unit (overrides the config file)"`
	JSON    bool   `help:"Print JSON instead of text where supported"`

	// Default command - TUI
	Watch WatchCmd `cmd:"" default:"withargs" help:"Live dashboard (default)"`

	Status     StatusCmd     `cmd:"" help:"Read and print the unit's state"`
	On         OnCmd         `cmd:"" help:"Turn the unit on"`
	Off        OffCmd        `cmd:"" help:"Turn the unit off"`
	Speed      SpeedCmd      `cmd:"" help:"Walk the fan speed one notch at a time to the target"`
	SpeedPct   SpeedPctCmd   `cmd:"" name:"speed-pct" help:"Set fan speed as a percentage"`
	Boost      BoostCmd      `cmd:"" help:"Jump to the highest speed"`
	Brightness BrightnessCmd `cmd:"" help:"Set display brightness"`
	Heating    HeatingCmd    `cmd:"" help:"Switch the mini heater"`
	Winter     WinterCmd     `cmd:"" help:"Switch winter mode"`
	Auto       AutoCmd       `cmd:"" help:"Switch automatic mode"`
	Night      NightCmd      `cmd:"" help:"Switch night mode"`
	FlowLock   FlowLockCmd   `cmd:"" name:"flow-lock" help:"Lock or unlock the two fan speeds together"`
	Direction  DirectionCmd  `cmd:"" help:"Choose which fans run"`
	Details    DetailsCmd    `cmd:"" help:"Read the device details record"`
	Raw        RawCmd        `cmd:"" help:"Send one protocol command and print the replies"`
	Scan       ScanCmd       `cmd:"" help:"List nearby units"`
	Serve      ServeCmd      `cmd:"" help:"Run the MQTT/HTTP bridge"`
}

// loadConfig reads the config file and applies the global flags.
func (g *CLI) loadConfig() (*config.Config, error) {
	config.Verbose = g.Verbose

	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.Address != "" {
		cfg.Device.Address = g.Address
	}
	if err := config.SetupLogging(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// connect builds the transport, session and client for the configured
// unit. The caller must call the returned stop function.
func (g *CLI) connect() (*config.Config, *api.Client, func(), error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.RequireAddress(); err != nil {
		return nil, nil, nil, err
	}

	log := config.Log.WithField("address", cfg.Device.Address)
	transport := ble.NewTransport(cfg.Device.ScanTimeout, config.Log)
	s := session.New(transport, state.NewModel(cfg.Device.StaleAfter), session.Options{
		Address:     cfg.Device.Address,
		IdleTimeout: cfg.Device.IdleTimeout,
		Logger:      config.Log,
	})
	client := api.New(s, api.Options{
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff:     cfg.Retry.Backoff,
			Classify:    ble.Classify,
			Logger:      log,
		},
		ReplyTimeout: cfg.Device.ReplyTimeout,
		Logger:       config.Log,
	})

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Stop(ctx); err != nil {
			config.Debugf("stop: %v", err)
		}
	}
	return cfg, client, stop, nil
}

// do runs one operation against the unit and prints the resulting state.
func (g *CLI) do(ctx context.Context, fn func(context.Context, *api.Client) error) error {
	_, client, stop, err := g.connect()
	if err != nil {
		return err
	}
	defer stop()

	if err := fn(ctx, client); err != nil {
		return err
	}
	return g.printState(client)
}

func (g *CLI) printState(client *api.Client) error {
	sess := client.Session()
	rssi, ok := sess.RSSI()
	report := commands.NewStatusReport(sess.Address(), client.Snapshot(), rssi, ok)
	if g.JSON {
		return commands.PrintJSON(os.Stdout, report)
	}
	commands.Status(os.Stdout, report, time.Now())
	return nil
}

// --- TUI Command ---

type WatchCmd struct{}

func (c *WatchCmd) Run(globals *CLI, ctx context.Context) error {
	_, client, stop, err := globals.connect()
	if err != nil {
		return err
	}
	defer stop()
	// Keep logs from drawing over the dashboard.
	if !globals.Verbose {
		config.Log.SetOutput(io.Discard)
	}
	return tui.Run(ctx, client)
}

// --- State Commands ---

type StatusCmd struct{}

func (c *StatusCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		_, err := client.Status(ctx)
		return err
	})
}

type OnCmd struct{}

func (c *OnCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		return client.SetPower(ctx, true)
	})
}

type OffCmd struct{}

func (c *OffCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		return client.SetPower(ctx, false)
	})
}

// --- Speed Commands ---

type SpeedCmd struct {
	Level int `arg:"" help:"Speed 0-10"`
}

func (c *SpeedCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		return client.SetSpeed(ctx, c.Level)
	})
}

type SpeedPctCmd struct {
	Percent int `arg:"" help:"Speed as 0-100 percent"`
}

func (c *SpeedPctCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		return client.SetSpeedPct(ctx, c.Percent)
	})
}

type BoostCmd struct{}

func (c *BoostCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		return client.SetHighSpeed(ctx)
	})
}

// --- Display Commands ---

type BrightnessCmd struct {
	Level int  `arg:"" help:"Brightness 0-6, or 0-100 with --pct"`
	Pct   bool `help:"Interpret the level as a percentage"`
}

func (c *BrightnessCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		if c.Pct {
			return client.SetBrightnessPct(ctx, c.Level)
		}
		return client.SetBrightness(ctx, c.Level)
	})
}

// --- Switch Commands ---

type HeatingCmd struct {
	State string `arg:"" enum:"on,off" help:"on or off"`
}

func (c *HeatingCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		return client.SetHeating(ctx, c.State == "on")
	})
}

type WinterCmd struct {
	State string `arg:"" enum:"on,off" help:"on or off"`
}

func (c *WinterCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		return client.SetWinterMode(ctx, c.State == "on")
	})
}

type AutoCmd struct {
	State string `arg:"" optional:"" default:"toggle" enum:"on,off,toggle" help:"on, off or toggle"`
}

func (c *AutoCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		if c.State == "toggle" {
			return client.ToggleAutoMode(ctx)
		}
		return client.SetAutoMode(ctx, c.State == "on")
	})
}

type NightCmd struct {
	State string `arg:"" optional:"" default:"on" enum:"on,off" help:"on or off"`
}

func (c *NightCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		return client.SetNightMode(ctx, c.State == "on")
	})
}

type FlowLockCmd struct {
	State string `arg:"" optional:"" default:"toggle" enum:"on,off,toggle" help:"on, off or toggle"`
}

func (c *FlowLockCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		if c.State == "toggle" {
			return client.ToggleFlowLock(ctx)
		}
		return client.SetFlowsLocked(ctx, c.State == "on")
	})
}

type DirectionCmd struct {
	Direction string `arg:"" enum:"forward,reverse,both" help:"forward (exhaust), reverse (supply) or both"`
}

func (c *DirectionCmd) Run(globals *CLI, ctx context.Context) error {
	return globals.do(ctx, func(ctx context.Context, client *api.Client) error {
		d, err := api.ParseDirection(c.Direction)
		if err != nil {
			return err
		}
		return client.SetDirection(ctx, d)
	})
}

// --- Diagnostic Commands ---

type DetailsCmd struct{}

func (c *DetailsCmd) Run(globals *CLI, ctx context.Context) error {
	_, client, stop, err := globals.connect()
	if err != nil {
		return err
	}
	defer stop()

	details, err := client.ReadDeviceDetails(ctx)
	if err != nil {
		return err
	}
	commands.PrintPayload(os.Stdout, details)
	return nil
}

type RawCmd struct {
	Command string        `arg:"" help:"Command name (see --list)" optional:""`
	List    bool          `help:"List command names"`
	Wait    time.Duration `default:"2s" help:"How long to print notifications for"`
}

func (c *RawCmd) Run(globals *CLI, ctx context.Context) error {
	if c.List || c.Command == "" {
		for _, name := range protocol.CommandNames() {
			fmt.Println(name)
		}
		return nil
	}
	cmd, err := protocol.ParseCommand(c.Command)
	if err != nil {
		return err
	}

	_, client, stop, err := globals.connect()
	if err != nil {
		return err
	}
	defer stop()

	frames, cancel := client.Session().Tap(16)
	defer cancel()

	fmt.Printf("> %s\n", cmd)
	commands.PrintPayload(os.Stdout, cmd.Bytes())
	if err := client.Send(ctx, cmd); err != nil {
		return err
	}

	timer := time.NewTimer(c.Wait)
	defer timer.Stop()
	for {
		select {
		case f := <-frames:
			fmt.Printf("< %d bytes\n", len(f))
			commands.PrintPayload(os.Stdout, f)
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type ScanCmd struct {
	Timeout time.Duration `default:"10s" help:"How long to scan"`
}

func (c *ScanCmd) Run(globals *CLI, ctx context.Context) error {
	if _, err := globals.loadConfig(); err != nil {
		return err
	}
	ads, err := ble.NewTransport(c.Timeout, config.Log).Discover(ctx, c.Timeout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if globals.JSON {
		return commands.PrintJSON(os.Stdout, ads)
	}
	commands.Advertisements(os.Stdout, ads)
	return nil
}

// --- Bridge ---

type ServeCmd struct{}

func (c *ServeCmd) Run(globals *CLI, ctx context.Context) error {
	cfg, client, stop, err := globals.connect()
	if err != nil {
		return err
	}
	defer stop()
	return daemon.Run(ctx, client, daemon.Options{Config: cfg, Logger: config.Log})
}
