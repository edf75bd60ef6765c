package mqtt

import (
	"context"
	"sync"
)

// Ack is the pending outcome of an asynchronous publish. It resolves once,
// when the broker acknowledges the message or the publish fails.
type Ack struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewAck returns an unresolved Ack.
func NewAck() *Ack {
	return &Ack{done: make(chan struct{})}
}

// ResolvedAck returns an Ack that has already completed with err.
func ResolvedAck(err error) *Ack {
	a := NewAck()
	a.Resolve(err)
	return a
}

// Resolve completes the Ack. Later calls are ignored.
func (a *Ack) Resolve(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// Done is closed when the Ack resolves.
func (a *Ack) Done() <-chan struct{} {
	return a.done
}

// Err returns the publish error once resolved, nil before that.
func (a *Ack) Err() error {
	select {
	case <-a.done:
		return a.err
	default:
		return nil
	}
}

// Wait blocks until the Ack resolves or ctx ends.
func (a *Ack) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
