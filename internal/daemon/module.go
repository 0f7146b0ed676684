package daemon

import (
	"context"
	"time"

	"github.com/fitlive/livechat/internal/api"
	"github.com/fitlive/livechat/internal/bus"
	"github.com/fitlive/livechat/internal/chatroom"
	"github.com/fitlive/livechat/internal/config"
	"github.com/fitlive/livechat/internal/lock"
	"github.com/fitlive/livechat/internal/logging"
	"github.com/fitlive/livechat/internal/metrics"
	"github.com/fitlive/livechat/internal/session"
	"github.com/fitlive/livechat/internal/status"
	"github.com/fitlive/livechat/internal/store"
	intsync "github.com/fitlive/livechat/internal/sync"
	"github.com/fitlive/livechat/internal/timeline"
	"github.com/fitlive/livechat/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
// Empty paths fall back to the session layout under session.BaseDir.
type Params struct {
	SessionID string
	ClientID  string
	Config    config.Config

	SocketPath string
	LockDir    string
	DBPath     string
	LogPath    string

	// Dialer overrides the websocket dialer; tests use it.
	Dialer transport.Dialer
}

func (p Params) socketPath() string {
	if p.SocketPath != "" {
		return p.SocketPath
	}
	return session.SocketPath(p.SessionID)
}

func (p Params) lockDir() string {
	if p.LockDir != "" {
		return p.LockDir
	}
	return session.Dir(p.SessionID)
}

func (p Params) dbPath() string {
	if p.DBPath != "" {
		return p.DBPath
	}
	return session.CacheDBPath(p.SessionID)
}

func (p Params) logPath() string {
	if p.LogPath != "" {
		return p.LogPath
	}
	return session.LogPath(p.SessionID, "chatd")
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideRegistry,
			provideMetrics,
			provideLock,
			provideStore,
			provideTimeline,
			provideTransport,
			provideChatroom,
			provideSyncEngine,
			provideReconciler,
			provideChatService,
			NewServer,
			NewMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.logPath(), p.SessionID)
}

func provideBus(logger *zap.Logger) *bus.Bus {
	return bus.New(logger)
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Transport {
	return metrics.NewTransport(reg)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring session lock", zap.String("session", p.SessionID))
	l, err := lock.Acquire(p.lockDir())
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so two daemons never migrate one cache.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := p.dbPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideTimeline() *timeline.Timeline {
	return timeline.New(time.Local)
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

// provideChatroom runs the controller headless: the daemon has no screen, but
// the controller is what decodes frames into the timeline and republishes
// them for the sync engine and Watch clients.
func provideChatroom(p Params, t *transport.Manager, tl *timeline.Timeline, b *bus.Bus, m *metrics.Transport, logger *zap.Logger) *chatroom.Controller {
	return chatroom.New(chatroom.Params{
		ClientID:       p.ClientID,
		Transport:      t,
		Timeline:       tl,
		Bus:            b,
		Logger:         logger.Named("chatroom"),
		Dropped:        m.FramesDropped,
		ScrollDebounce: p.Config.ScrollDebounce.Duration,
	})
}

func provideSyncEngine(p Params, db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, p.SessionID, logger.Named("sync"))
}

func provideReconciler(db *store.DB, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, logger)
}

func provideChatService(p Params, t *transport.Manager, tl *timeline.Timeline, db *store.DB, rec *intsync.Reconciler, b *bus.Bus, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(p.SessionID, p.ClientID, t, tl, db, rec, b, logger.Named("api"))
}

func registerLifecycle(
	lc fx.Lifecycle,
	p Params,
	srv *Server,
	metricsSrv *MetricsServer,
	lk *lock.Lock,
	db *store.DB,
	tl *timeline.Timeline,
	room *chatroom.Controller,
	engine *intsync.Engine,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Paint last-known history until the server snapshot replaces it.
			if cached, err := intsync.LoadHistory(db, p.SessionID, 0); err != nil {
				logger.Warn("failed to load cached history", zap.Error(err))
			} else if len(cached) > 0 {
				tl.ReplaceAll(cached)
				logger.Info("cached history loaded", zap.Int("messages", len(cached)))
			}

			// Sync engine subscribes to chat.* before the first frame can arrive.
			engine.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			metricsSrv.Start()

			return room.Mount(p.SessionID)
		},
		OnStop: func(ctx context.Context) error {
			room.Unmount()
			engine.Stop()
			srv.Stop(ctx)
			metricsSrv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
