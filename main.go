package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/chirino/case-recorder/internal/cmd/inspect"
	"github.com/chirino/case-recorder/internal/cmd/migrate"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "case-recorder",
		Usage: "Case and iteration store for optimization run recordings",
		Commands: []*cli.Command{
			migrate.Command(),
			inspect.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
