package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/vitaminmoo/prana-tool/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var c cli.CLI
	kctx := kong.Parse(&c,
		kong.Name("prana"),
		kong.Description("Control Prana recuperators over Bluetooth LE"),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	err := kctx.Run(&c)
	stop()
	kctx.FatalIfErrorf(err)
}
