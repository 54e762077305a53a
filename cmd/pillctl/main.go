package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"

	"pillbot/internal/ctl"
	logx "pillbot/pkg/logx"
)

var CLI struct {
	Config   string `help:"Bot config file (json or yaml)." type:"path" default:"./config.yaml"`
	Timezone string `name:"tz" help:"Override reminder.timezone for date and time arguments."`
	Verbose  bool   `short:"v" help:"Debug logging to stderr."`

	Schedules ctl.SchedulesCmd `cmd:"" help:"List stored schedules and their phases."`
	Add       ctl.AddCmd       `cmd:"" help:"Add a schedule."`
	Delete    ctl.DeleteCmd    `cmd:"" help:"Delete a schedule by name."`
	Resolve   ctl.ResolveCmd   `cmd:"" help:"Show the phase of a schedule active at an instant."`
	Pending   ctl.PendingCmd   `cmd:"" help:"Show an owner's pending doses for a day."`
	Log       ctl.LogCmd       `cmd:"" help:"Record a dose as taken."`
	Tick      ctl.TickCmd      `cmd:"" help:"Dry-run the reminder matcher and print what would be sent."`
	Token     ctl.TokenCmd     `cmd:"" help:"Issue an HTTP API bearer token for an owner."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("pillctl"),
		kong.Description("Operator tool for the pill reminder bot's store"),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	level := "WARN"
	if CLI.Verbose {
		level = "DEBUG"
	}
	log := logx.NewConsole(level).With(logx.String("comp", "pillctl"))

	appCtx, closeStore, err := ctl.Open(ctx, CLI.Config, CLI.Timezone, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	appCtx.Out = os.Stdout

	err = kctx.Run(appCtx)
	if cerr := closeStore(); cerr != nil {
		log.Warn("close store", logx.Err(cerr))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
