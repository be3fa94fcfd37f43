package queue

import (
	"context"

	"github.com/shaban/audiograph/graph"
)

// Dispatcher wraps a node graph and applies its mutations via a Queue.
// Call Start() once, and Close() when done. Graph mutations run synchronously
// so callers get their error, but they are serialized with queued ops.
type Dispatcher struct {
	Graph *graph.Graph
	Q     *Queue
}

func NewDispatcher(g *graph.Graph, q *Queue) *Dispatcher {
	if q == nil {
		q = New(32, nil)
	}
	return &Dispatcher{Graph: g, Q: q}
}

func (d *Dispatcher) Start() { d.Q.Start() }
func (d *Dispatcher) Close() { d.Q.Close() }

// Enqueue schedules an arbitrary queued operation to run on the dispatcher's worker.
// This enables callers to perform small tasks (like scheduled parameter
// changes) serialized with graph mutations.
func (d *Dispatcher) Enqueue(op Op) error {
	if d == nil || d.Q == nil {
		return nil
	}
	return d.Q.Enqueue(op)
}

// RunSync enqueues an operation and waits for it to complete, returning its error.
func (d *Dispatcher) RunSync(fn Func) error {
	if d == nil || d.Q == nil {
		return fn(context.Background())
	}
	done := make(chan error, 1)
	if err := d.Q.Enqueue(Func(func(ctx context.Context) error {
		err := fn(ctx)
		// Non-blocking send in case caller gave up
		select {
		case done <- err:
		default:
		}
		return err
	})); err != nil {
		return err
	}
	// Wait for completion or queue shutdown
	select {
	case err := <-done:
		return err
	case <-d.Q.Done():
		select {
		case err := <-done:
			return err
		default:
			return ErrQueueClosed
		}
	}
}

func (d *Dispatcher) Attach(n graph.Node) error {
	return d.RunSync(func(context.Context) error { return d.Graph.Attach(n) })
}

func (d *Dispatcher) Connect(src, dst graph.Node) error {
	return d.RunSync(func(context.Context) error { return d.Graph.Connect(src, dst) })
}

func (d *Dispatcher) Disconnect(src graph.Node) error {
	return d.RunSync(func(context.Context) error { return d.Graph.Disconnect(src) })
}

func (d *Dispatcher) Remove(n graph.Node) error {
	return d.RunSync(func(context.Context) error { return d.Graph.Remove(n) })
}

// SetOutput routes n to the terminal mixer. The caller's ctx reaches the
// session configurer.
func (d *Dispatcher) SetOutput(ctx context.Context, n graph.Node) error {
	return d.RunSync(func(context.Context) error { return d.Graph.SetOutput(ctx, n) })
}

func (d *Dispatcher) DisconnectAllInputs() error {
	return d.RunSync(func(context.Context) error { return d.Graph.DisconnectAllInputs() })
}
