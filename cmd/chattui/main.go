package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fitlive/livechat/internal/config"
	"github.com/fitlive/livechat/internal/session"
	"github.com/fitlive/livechat/internal/tui"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "chat session id (overrides config default)")
	baseURLFlag := flag.String("base-url", "", "chat server base URL (overrides config)")
	flag.Parse()

	// A missing .env is normal.
	_ = godotenv.Load()

	sessionID := session.Resolve(*sessionFlag)
	if err := session.ValidateID(sessionID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfgPath := session.ConfigPath()
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	if *baseURLFlag != "" {
		cfg.BaseURL = *baseURLFlag
	}

	clientID, err := session.ClientID(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var screen *tui.App
	app := fx.New(
		fx.NopLogger,
		tui.Module(tui.Params{
			SessionID: sessionID,
			ClientID:  clientID,
			Config:    *cfg,
		}),
		fx.Populate(&screen),
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	runErr := screen.Run()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStop()
	_ = app.Stop(stopCtx)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
