package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueClosed         = errors.New("queue closed")
	ErrQueueNotInitialized = errors.New("queue not initialized")
)

// Op is a graph mutation operation. It should be quick and non-blocking;
// any heavy work should be prepared in advance. It receives a context that
// will be canceled on shutdown.
// It returns an error only for unrecoverable failures; idempotent no-ops
// should return nil.
type Op interface {
	Apply(ctx context.Context) error
}

// Func is a helper to adapt functions into Op.
type Func func(ctx context.Context) error

func (f Func) Apply(ctx context.Context) error { return f(ctx) }

// Queue serializes graph mutations onto a single goroutine.
// Use Enqueue to push operations and Close to drain and stop.
type Queue struct {
	ch     chan Op
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	logger *zap.Logger
}

// New creates a queue with a fixed buffer. Failed asynchronous ops are logged
// to logger, which may be nil.
func New(buffer int, logger *zap.Logger) *Queue {
	if buffer <= 0 {
		buffer = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{ch: make(chan Op, buffer), ctx: ctx, cancel: cancel, logger: logger}
}

// Start begins the worker goroutine. Safe to call multiple times.
func (q *Queue) Start() {
	q.once.Do(func() {
		q.wg.Add(1)
		go q.run()
	})
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			// drain outstanding ops best-effort with short deadline
			drainUntil := time.After(10 * time.Millisecond)
			for {
				select {
				case op := <-q.ch:
					q.apply(op)
				case <-drainUntil:
					return
				default:
					return
				}
			}
		case op := <-q.ch:
			q.apply(op)
		}
	}
}

func (q *Queue) apply(op Op) {
	if op == nil {
		return
	}
	if err := op.Apply(q.ctx); err != nil {
		q.logger.Warn("queued operation failed", zap.Error(err))
	}
}

// Enqueue adds an operation to the queue.
func (q *Queue) Enqueue(op Op) error {
	if q == nil || q.ch == nil {
		return ErrQueueNotInitialized
	}
	if q.ctx.Err() != nil {
		return ErrQueueClosed
	}
	select {
	case q.ch <- op:
		return nil
	case <-q.ctx.Done():
		return ErrQueueClosed
	}
}

// Done is closed once the queue shuts down.
func (q *Queue) Done() <-chan struct{} { return q.ctx.Done() }

// Close stops the worker and waits for it to finish.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.cancel()
	q.wg.Wait()
}
