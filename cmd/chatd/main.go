package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fitlive/livechat/internal/config"
	"github.com/fitlive/livechat/internal/daemon"
	"github.com/fitlive/livechat/internal/session"
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

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionID: sessionID,
			ClientID:  clientID,
			Config:    *cfg,
		}),
	)

	app.Run()
}
