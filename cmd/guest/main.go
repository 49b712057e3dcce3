package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/comigor/guest-assistant/internal/config"
	"github.com/comigor/guest-assistant/internal/flow"
	"github.com/comigor/guest-assistant/internal/gateway"
	"github.com/comigor/guest-assistant/internal/logger"
	"github.com/comigor/guest-assistant/internal/session"
	"github.com/comigor/guest-assistant/internal/terminal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "guest:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("guest", pflag.ExitOnError)
	config.Flags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Logs would interleave with the screen, so they go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger.SetOutput(logOut)
	logger.SetLevel(cfg.Log.Level)

	ctx := context.Background()

	store, tabID, err := session.Open(ctx, cfg.Session)
	if err != nil {
		return err
	}
	defer store.Close()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		// Reading stdin cannot be interrupted, so a signal ends the process.
		<-sigs
		store.Close()
		fmt.Println()
		os.Exit(130)
	}()
	logger.L.Info("session opened", "backend", cfg.Session.Backend, "tab", tabID)
	if cfg.Session.Backend != "memory" && cfg.Session.TabID == "" {
		fmt.Printf("Tab %s (resume with --tab %s)\n", tabID, tabID)
	}

	gw, err := gateway.New(cfg.Assistant.BaseURL, gateway.WithTimeout(cfg.Assistant.Timeout))
	if err != nil {
		return err
	}

	app := terminal.New(store, gw, os.Stdin, os.Stdout, flow.WithInitialQuery(cfg.Assistant.InitialQuery))
	return app.Run(ctx)
}
