package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fitlive/livechat/internal/api"
	"github.com/fitlive/livechat/internal/config"
	"github.com/fitlive/livechat/internal/session"
	"github.com/fitlive/livechat/internal/tui/views"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connection state and counters",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return outputJSON(st)
			}
			fmt.Printf("Session:  %s\n", st.SessionID)
			fmt.Printf("Client:   %s\n", st.ClientID)
			fmt.Printf("State:    %s\n", st.State)
			fmt.Printf("Uptime:   %s\n", st.Uptime.Round(time.Second))
			fmt.Printf("Messages: %d\n", st.Messages)
			fmt.Printf("Pending:  %d\n", st.Pending)
			if !st.LastEventAt.IsZero() {
				fmt.Printf("Last event: %s\n", st.LastEventAt.Local().Format(time.DateTime))
			}
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <text>...",
	Short: "Send a message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			queued, err := c.Send(ctx, strings.Join(args, " "))
			return reportAccepted(queued, err)
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <message-id> <text>...",
	Short: "Replace the text of one of your messages",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			queued, err := c.Edit(ctx, args[0], strings.Join(args[1:], " "))
			return reportAccepted(queued, err)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <message-id>...",
	Short: "Delete one or more of your messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			queued, err := c.Delete(ctx, args)
			return reportAccepted(queued, err)
		})
	},
}

func reportAccepted(queued bool, err error) error {
	if err != nil {
		return err
	}
	if jsonOut {
		return outputJSON(map[string]bool{"accepted": true, "queued": queued})
	}
	if queued {
		fmt.Println("Queued: the session is reconnecting and will deliver it once open.")
		return nil
	}
	fmt.Println("Sent.")
	return nil
}

var lsLimit int

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"rows"},
	Short:   "List the timeline with day headers",
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			rows, err := c.Rows(ctx, lsLimit)
			if err != nil {
				return err
			}
			if jsonOut {
				return outputJSON(rows)
			}
			if len(rows) == 0 {
				fmt.Println("No messages.")
				return nil
			}
			for _, r := range rows {
				if r.Kind == "header" {
					fmt.Printf("── %s ──\n", r.Day)
					continue
				}
				who := r.ClientID
				if r.Own {
					who = "you"
				}
				edited := ""
				if r.Edited {
					edited = " (edited)"
				}
				fmt.Printf("%6s  %s  %-12s %s%s\n", r.ID, r.SentAt.Local().Format("15:04"), who, r.Text, edited)
			}
			return nil
		})
	},
}

var (
	searchLimit int
	searchAll   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Search cached messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			hits, err := c.Search(ctx, strings.Join(args, " "), searchLimit, searchAll)
			if err != nil {
				return err
			}
			if jsonOut {
				return outputJSON(hits)
			}
			if len(hits) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, h := range hits {
				fmt.Printf("%s  %-10s %6s  %s\n", h.SentAt.Local().Format(time.DateTime), h.SessionID, h.ID, h.Snippet)
			}
			return nil
		})
	},
}

var watchPrefix string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live session events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		id, err := resolveSession()
		if err != nil {
			return err
		}
		c, err := api.Dial(session.SocketPath(id))
		if err != nil {
			return fmt.Errorf("cannot connect to daemon for session %q: %w", id, err)
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = c.Watch(ctx, watchPrefix, func(evt api.WatchEvent) error {
			if jsonOut {
				return outputJSON(evt)
			}
			fmt.Printf("%s  %-26s %s\n", evt.OccurredAt.Local().Format("15:04:05.000"), evt.Kind, evt.Summary)
			return nil
		})
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return err
	},
}

var qrCmd = &cobra.Command{
	Use:   "qr",
	Short: "Print the session endpoint as a QR code",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		id, err := resolveSession()
		if err != nil {
			return err
		}
		cfg, err := config.LoadOrDefault(session.ConfigPath())
		if err != nil {
			return err
		}
		url, err := session.Endpoint(cfg.BaseURL, id)
		if err != nil {
			return err
		}
		qr, err := views.RenderQR(url)
		if err != nil {
			return err
		}
		fmt.Print(qr)
		fmt.Printf("\n  %s\n", url)
		return nil
	},
}

func init() {
	lsCmd.Flags().IntVarP(&lsLimit, "limit", "n", 0, "show only the last n messages (0 for all)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum results")
	searchCmd.Flags().BoolVar(&searchAll, "all", false, "search every cached session")
	watchCmd.Flags().StringVar(&watchPrefix, "prefix", "chat.", "event kind prefix to stream (empty for all)")

	rootCmd.AddCommand(statusCmd, sendCmd, editCmd, deleteCmd, lsCmd, searchCmd, watchCmd, qrCmd)
}
