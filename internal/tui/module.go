package tui

import (
	"context"
	"os"
	"time"

	"github.com/fitlive/livechat/internal/bus"
	"github.com/fitlive/livechat/internal/config"
	"github.com/fitlive/livechat/internal/logging"
	"github.com/fitlive/livechat/internal/metrics"
	"github.com/fitlive/livechat/internal/session"
	"github.com/fitlive/livechat/internal/status"
	"github.com/fitlive/livechat/internal/store"
	intsync "github.com/fitlive/livechat/internal/sync"
	"github.com/fitlive/livechat/internal/timeline"
	"github.com/fitlive/livechat/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds what chattui resolved before building the screen. Empty paths
// fall back to the session layout.
type Params struct {
	SessionID string
	ClientID  string
	Config    config.Config
	LogPath   string
	CachePath string

	// Dialer overrides the websocket dialer; tests use it.
	Dialer transport.Dialer
}

// Module returns the fx module that runs the chat core in-process behind
// the terminal screen. Populate *App and call Run between Start and Stop.
func Module(p Params) fx.Option {
	return fx.Module("tui",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			bus.New,
			status.NewMachine,
			provideMetrics,
			provideTimeline,
			provideTransport,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	logPath := p.LogPath
	if logPath == "" {
		logPath = session.LogPath(p.SessionID, "chattui")
	}
	// The screen owns stderr, so log to the file only.
	return logging.NewTUI(logPath, p.SessionID)
}

func provideMetrics() *metrics.Transport {
	return metrics.NewTransport(prometheus.NewRegistry())
}

// provideTimeline seeds the timeline from chatd's cache when one exists so
// the screen has history before the snapshot arrives.
func provideTimeline(p Params, logger *zap.Logger) *timeline.Timeline {
	tl := timeline.New(time.Local)

	path := p.CachePath
	if path == "" {
		path = session.CacheDBPath(p.SessionID)
	}
	if _, err := os.Stat(path); err != nil {
		return tl
	}
	db, err := store.OpenReadOnly(path)
	if err != nil {
		logger.Warn("failed to open cache", zap.Error(err))
		return tl
	}
	defer func() { _ = db.Close() }()

	cached, err := intsync.LoadHistory(db, p.SessionID, 0)
	if err != nil {
		logger.Warn("failed to load cached history", zap.Error(err))
		return tl
	}
	tl.ReplaceAll(cached)
	logger.Info("cached history loaded", zap.Int("messages", len(cached)))
	return tl
}

func provideTransport(p Params, b *bus.Bus, machine *status.Machine, m *metrics.Transport, logger *zap.Logger) *transport.Manager {
	cfg := p.Config
	return transport.New(transport.Options{
		BaseURL:           cfg.BaseURL,
		KeepaliveInterval: cfg.KeepaliveInterval.Duration,
		ResendInterval:    cfg.ResendInterval.Duration,
		ReconnectDelay:    cfg.ReconnectDelay.Duration,
		MaxReconnects:     cfg.MaxReconnects,
		Dialer:            p.Dialer,
	}, b, machine, m, logger.Named("transport"))
}

func provideApp(p Params, t *transport.Manager, tl *timeline.Timeline, b *bus.Bus, m *metrics.Transport, logger *zap.Logger) *App {
	shareURL, err := session.Endpoint(p.Config.BaseURL, p.SessionID)
	if err != nil {
		shareURL = p.SessionID
	}
	return NewApp(AppParams{
		SessionID:      p.SessionID,
		ClientID:       p.ClientID,
		ShareURL:       shareURL,
		Transport:      t,
		Timeline:       tl,
		Bus:            b,
		Logger:         logger,
		Dropped:        m.FramesDropped,
		ScrollDebounce: p.Config.ScrollDebounce.Duration,
	})
}

func registerLifecycle(lc fx.Lifecycle, a *App, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return a.Mount()
		},
		OnStop: func(_ context.Context) error {
			a.Close()
			_ = logger.Sync()
			return nil
		},
	})
}
