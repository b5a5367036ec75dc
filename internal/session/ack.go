package session

import "context"

// Ack is the durability confirmation of a locally applied change. The local
// result is returned at once; Ack resolves when the gateway has answered.
type Ack struct {
	done chan struct{}
	err  error
}

func newAck() *Ack { return &Ack{done: make(chan struct{})} }

func resolvedAck(err error) *Ack {
	a := newAck()
	a.resolve(err)
	return a
}

func (a *Ack) resolve(err error) {
	a.err = err
	close(a.done)
}

func (a *Ack) Done() <-chan struct{} { return a.done }

// Err is the persistence result. Only meaningful once Done is closed.
func (a *Ack) Err() error {
	select {
	case <-a.done:
		return a.err
	default:
		return nil
	}
}

// Wait blocks until the write settles or ctx ends. A ctx error means the
// outcome is still unknown, not that the write failed.
func (a *Ack) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
