package hardware

import (
	"context"
	"time"
)

// WatchButtons reads edges from src and calls onLongPress with the button
// index whenever a press is held for at least longPress. It blocks until
// ctx is done or the event stream closes.
func WatchButtons(ctx context.Context, src ButtonSource, longPress time.Duration, onLongPress func(button int)) error {
	events := src.Events()
	down := make(map[int]time.Duration)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return ErrClosed
			}
			if evt.Pressed {
				down[evt.Button] = evt.At
				continue
			}
			pressedAt, ok := down[evt.Button]
			if !ok {
				continue
			}
			delete(down, evt.Button)
			if evt.At-pressedAt >= longPress {
				onLongPress(evt.Button)
			}
		}
	}
}
