package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fitlive/livechat/internal/api"
	"github.com/fitlive/livechat/internal/session"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	sessionFlag string
	jsonOut     bool
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Control a running chatd session",
	Long: `chatctl talks to the chatd daemon of one chat session over its Unix
socket: send, edit and delete messages, list the timeline, search the local
cache and stream live events.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		// A missing .env is normal.
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "chat session id (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func resolveSession() (string, error) {
	id := session.Resolve(sessionFlag)
	if err := session.ValidateID(id); err != nil {
		return "", err
	}
	return id, nil
}

// withClient dials the session daemon and runs fn with a request-scoped
// context.
func withClient(fn func(ctx context.Context, c *api.Client) error) error {
	id, err := resolveSession()
	if err != nil {
		return err
	}
	c, err := api.Dial(session.SocketPath(id))
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for session %q: %w", id, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, c)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
