package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fitlive/livechat/internal/bus"
	"github.com/fitlive/livechat/internal/config"
	"github.com/fitlive/livechat/internal/metrics"
	"github.com/fitlive/livechat/internal/outbox"
	"github.com/fitlive/livechat/internal/protocol"
	"github.com/fitlive/livechat/internal/session"
	"github.com/fitlive/livechat/internal/status"
	"go.uber.org/zap"
)

var errNotOpen = errors.New("socket not open")

const writeTimeout = 10 * time.Second

// Options configures a Manager. Zero values fall back to the config defaults.
type Options struct {
	BaseURL           string
	KeepaliveInterval time.Duration
	ResendInterval    time.Duration
	ReconnectDelay    time.Duration
	MaxReconnects     int
	Dialer            Dialer
}

func (o *Options) setDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = config.DefaultBaseURL
	}
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = config.DefaultKeepaliveInterval
	}
	if o.ResendInterval <= 0 {
		o.ResendInterval = config.DefaultResendInterval
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = config.DefaultReconnectDelay
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = config.DefaultMaxReconnects
	}
	if o.Dialer == nil {
		o.Dialer = WebsocketDialer{}
	}
}

// Manager owns at most one reconnecting connection, bound to one session.
// Inbound frames are published on the bus as bus.KindFrameReceived from a
// single reader goroutine. Failures are logged and retried, never returned.
type Manager struct {
	opts    Options
	bus     *bus.Bus
	machine *status.Machine
	metrics *metrics.Transport
	logger  *zap.Logger

	// lifeMu serialises Connect and Close; mu only guards the conn pointer so
	// frame handlers can call Send or SessionID while a teardown waits on them.
	lifeMu sync.Mutex
	mu     sync.Mutex
	conn   *connection
}

// New creates a connection manager. machine and m may be nil.
func New(opts Options, b *bus.Bus, machine *status.Machine, m *metrics.Transport, logger *zap.Logger) *Manager {
	opts.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if machine == nil {
		machine = status.NewMachine(b)
	}
	if m == nil {
		m = metrics.NewTransport(nil)
	}
	return &Manager{
		opts:    opts,
		bus:     b,
		machine: machine,
		metrics: m,
		logger:  logger,
	}
}

// Connect opens the connection for sessionID. Calling it again with the same
// id while the connection is live is a no-op; a different id tears down the
// previous connection first. Reconnecting the same id after FAILED carries
// the frames buffered since into the new connection.
func (m *Manager) Connect(sessionID string) error {
	if err := session.ValidateID(sessionID); err != nil {
		return err
	}
	url, err := session.Endpoint(m.opts.BaseURL, sessionID)
	if err != nil {
		return err
	}

	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	var carried [][]byte
	if cur := m.current(); cur != nil {
		if cur.sessionID == sessionID && !m.machine.Current().Terminal() {
			return nil
		}
		m.swap(nil)
		leftover := cur.close()
		if cur.sessionID == sessionID {
			carried = leftover
		} else if len(leftover) > 0 {
			cur.logger.Warn("pending frames dropped on session switch", zap.Int("frames", len(leftover)))
		}
	}

	m.swap(m.start(sessionID, url, carried))
	return nil
}

// Send writes frame now if the socket is open, otherwise buffers it and
// retries on the resend interval until the socket opens or Close is called.
func (m *Manager) Send(frame []byte) {
	c := m.current()
	if c == nil {
		m.logger.Warn("send without connection, frame dropped", zap.Int("bytes", len(frame)))
		return
	}
	c.send(frame)
}

// Close terminates the connection and cancels keepalive, resend and
// reconnect timers. It returns after every goroutine has exited. It must not
// be called from a frame handler.
func (m *Manager) Close() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if cur := m.swap(nil); cur != nil {
		if leftover := cur.close(); len(leftover) > 0 {
			cur.logger.Info("pending frames dropped on close", zap.Int("frames", len(leftover)))
		}
	}
}

// Subscribe registers h for raw inbound frames. The payload is []byte.
func (m *Manager) Subscribe(h bus.Handler) func() {
	return m.bus.Subscribe(bus.KindFrameReceived, h)
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// SessionID returns the session of the live connection, or "".
func (m *Manager) SessionID() string {
	if c := m.current(); c != nil {
		return c.sessionID
	}
	return ""
}

// Pending returns the number of buffered frames.
func (m *Manager) Pending() int {
	if c := m.current(); c != nil {
		return c.queue.Len()
	}
	return 0
}

func (m *Manager) current() *connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// swap replaces the live connection and returns the previous one.
func (m *Manager) swap(c *connection) *connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.conn
	m.conn = c
	return prev
}

func (m *Manager) start(sessionID, url string, carried [][]byte) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		mgr:       m,
		sessionID: sessionID,
		url:       url,
		ctx:       ctx,
		cancel:    cancel,
		logger:    m.logger.With(zap.String("session_id", sessionID)),
	}
	c.queue = outbox.NewQueue(c, m.opts.ResendInterval, m.metrics.OutboxPending, c.logger)
	for _, f := range carried {
		c.queue.Push(f)
	}
	c.queue.Start(ctx)

	c.wg.Add(2)
	go c.run()
	go c.keepalive()
	return c
}

func (m *Manager) transition(to status.State) {
	if err := m.machine.Transition(to); err != nil {
		m.logger.Debug("state transition skipped", zap.Error(err))
	}
}

// connection is one session's socket lifecycle: dial, read, reconnect.
type connection struct {
	mgr       *Manager
	sessionID string
	url       string
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.Logger
	queue     *outbox.Queue
	wg        sync.WaitGroup

	mu   sync.Mutex
	sock Socket

	// sendMu orders direct writes against close.
	sendMu sync.RWMutex
	closed bool
}

func (c *connection) run() {
	defer c.wg.Done()
	m := c.mgr

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.opts.ReconnectDelay), uint64(m.opts.MaxReconnects)),
		c.ctx,
	)

	for {
		m.transition(status.Connecting)
		sock, err := m.opts.Dialer.Dial(c.ctx, c.url)
		if err == nil {
			policy.Reset()
			c.setSocket(sock)
			m.transition(status.Open)
			m.metrics.ConnectionOpen.Set(1)
			c.logger.Info("chat socket open", zap.String("url", c.url))

			c.queue.Flush(c.ctx)
			err = c.read(sock)

			c.setSocket(nil)
			_ = sock.Close()
			m.metrics.ConnectionOpen.Set(0)
		}
		if c.ctx.Err() != nil {
			return
		}

		c.logger.Warn("chat socket closed", zap.Error(err))
		m.transition(status.Closed)

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			if c.ctx.Err() == nil {
				// Buffered frames wait for the next Connect, not a timer.
				c.queue.Halt()
				c.logger.Error("reconnect ceiling reached, giving up",
					zap.Int("max_reconnects", m.opts.MaxReconnects), zap.Int("pending", c.queue.Len()))
				m.transition(status.Failed)
			}
			return
		}
		m.metrics.Reconnects.Inc()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-c.ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (c *connection) read(sock Socket) error {
	for {
		frame, err := sock.Read(c.ctx)
		if err != nil {
			return err
		}
		c.mgr.metrics.FramesReceived.Inc()
		c.mgr.bus.Publish(bus.Event{
			Kind:      bus.KindFrameReceived,
			Timestamp: time.Now(),
			Payload:   frame,
		})
	}
}

func (c *connection) keepalive() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.mgr.opts.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.WriteFrame(c.ctx, protocol.Ping()); err != nil && !errors.Is(err, errNotOpen) {
				c.logger.Debug("keepalive failed", zap.Error(err))
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *connection) send(frame []byte) {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		c.logger.Debug("send after close, frame dropped")
		return
	}

	if c.queue.Len() == 0 {
		if err := c.WriteFrame(c.ctx, frame); err == nil {
			return
		}
	}
	c.queue.Push(frame)
	if c.socket() != nil {
		c.queue.Flush(c.ctx)
	}
}

// WriteFrame implements outbox.FrameWriter.
func (c *connection) WriteFrame(ctx context.Context, frame []byte) error {
	sock := c.socket()
	if sock == nil {
		return errNotOpen
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := sock.Write(ctx, frame); err != nil {
		return err
	}
	c.mgr.metrics.FramesSent.Inc()
	return nil
}

func (c *connection) socket() Socket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock
}

func (c *connection) setSocket(sock Socket) {
	c.mu.Lock()
	c.sock = sock
	c.mu.Unlock()
}

// close tears the connection down and returns the frames that were still
// buffered.
func (c *connection) close() [][]byte {
	c.cancel()

	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return nil
	}
	c.closed = true
	c.sendMu.Unlock()

	leftover := c.queue.Drain()
	c.queue.Stop()
	if sock := c.socket(); sock != nil {
		_ = sock.Close()
	}
	c.wg.Wait()
	c.mgr.metrics.ConnectionOpen.Set(0)
	c.mgr.transition(status.Stopped)
	c.logger.Info("chat connection closed")
	return leftover
}
