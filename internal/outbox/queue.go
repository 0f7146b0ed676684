package outbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FrameWriter writes one frame to the live socket. It returns an error when
// the socket is not open or the write fails; the frame is then kept queued.
type FrameWriter interface {
	WriteFrame(ctx context.Context, frame []byte) error
}

// Gauge receives the number of pending frames after every change.
type Gauge interface {
	Set(float64)
}

// Queue buffers frames that could not be written and retries them on a fixed
// interval until they are written or the queue is stopped. Frames leave the
// queue in the order they entered it.
type Queue struct {
	writer   FrameWriter
	interval time.Duration
	logger   *zap.Logger
	gauge    Gauge

	mu      sync.Mutex
	pending [][]byte
	stopped bool

	flushMu sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewQueue creates a resend queue draining into w every interval.
func NewQueue(w FrameWriter, interval time.Duration, gauge Gauge, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		writer:   w,
		interval: interval,
		logger:   logger,
		gauge:    gauge,
	}
}

// Start begins the retry loop.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})
	go q.loop(ctx)
}

// Stop cancels the retry loop, waits for an in-flight flush to finish and
// discards anything still pending. No frame is written after Stop returns.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
		<-q.done
	}
	// Wait out a Flush started by a caller other than the loop.
	q.flushMu.Lock()
	defer q.flushMu.Unlock()
	q.report(0)
	if dropped > 0 {
		q.logger.Info("outbox stopped with pending frames", zap.Int("dropped", dropped))
	}
}

// Halt stops the retry loop but keeps pending frames for Drain. Flush and
// Push still work.
func (q *Queue) Halt() {
	if q.cancel != nil {
		q.cancel()
		<-q.done
	}
}

// Drain waits out an in-flight flush, then removes and returns every pending
// frame in order.
func (q *Queue) Drain() [][]byte {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()
	q.mu.Lock()
	frames := q.pending
	q.pending = nil
	q.mu.Unlock()
	q.report(0)
	return frames
}

// Push appends a frame to the back of the queue.
func (q *Queue) Push(frame []byte) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, frame)
	n := len(q.pending)
	q.mu.Unlock()
	q.report(n)
}

// Len returns the number of pending frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush writes pending frames in order and stops at the first failure.
// It returns the number of frames written.
func (q *Queue) Flush(ctx context.Context) int {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	written := 0
	for {
		q.mu.Lock()
		if q.stopped || len(q.pending) == 0 {
			q.mu.Unlock()
			return written
		}
		head := q.pending[0]
		q.mu.Unlock()

		if err := q.writer.WriteFrame(ctx, head); err != nil {
			q.logger.Debug("outbox flush deferred", zap.Error(err), zap.Int("pending", q.Len()))
			return written
		}

		q.mu.Lock()
		if len(q.pending) > 0 {
			q.pending = q.pending[1:]
		}
		n := len(q.pending)
		q.mu.Unlock()
		q.report(n)
		written++
	}
}

func (q *Queue) loop(ctx context.Context) {
	defer close(q.done)
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if q.Len() > 0 {
				q.Flush(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) report(n int) {
	if q.gauge != nil {
		q.gauge.Set(float64(n))
	}
}
