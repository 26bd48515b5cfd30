package world

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"shelltown.ai/internal/protocol"
)

// Run executes submitted commands one at a time until ctx is cancelled or Stop is called.
func (w *World) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	defer close(w.done)
	w.log.Info("world loop started", zap.Int("width", w.grid.Width()), zap.Int("height", w.grid.Height()))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("world loop stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-w.stop:
			w.log.Info("world loop stopped")
			return nil
		case cmd := <-w.cmds:
			cmd()
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Done is closed once Run has returned.
func (w *World) Done() <-chan struct{} { return w.done }

// do runs fn on the loop goroutine and waits for its result.
func (w *World) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	cmd := func() {
		defer func() {
			if r := recover(); r != nil {
				w.stats.panics.Add(1)
				w.log.Error("world command panic", zap.Any("panic", r), zap.Stack("stack"))
				res <- &Error{Code: protocol.ErrInternal, Message: fmt.Sprint(r)}
			}
		}()
		res <- fn()
	}

	select {
	case w.cmds <- cmd:
	case <-w.done:
		return ErrWorldStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-res:
		return err
	case <-w.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrWorldStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
