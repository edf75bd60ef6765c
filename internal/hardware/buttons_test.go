package hardware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchButtons_LongPress(t *testing.T) {
	src := NewSimButtons()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pressed := make(chan int, 8)
	done := make(chan error, 1)
	go func() {
		done <- WatchButtons(ctx, src, 250*time.Millisecond, func(button int) { pressed <- button })
	}()

	src.Press(0, 100*time.Millisecond) // too short
	src.Press(1, 300*time.Millisecond)
	src.Press(0, 250*time.Millisecond)

	assert.Equal(t, 1, <-pressed)
	assert.Equal(t, 0, <-pressed)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, pressed)
}

func TestWatchButtons_ReleaseWithoutPress(t *testing.T) {
	events := make(chan ButtonEvent, 4)
	src := &chanSource{events: events}

	events <- ButtonEvent{Button: 0, Pressed: false, At: 10 * time.Second}
	events <- ButtonEvent{Button: 0, Pressed: true, At: 11 * time.Second}
	events <- ButtonEvent{Button: 0, Pressed: false, At: 12 * time.Second}
	close(events)

	var got []int
	err := WatchButtons(context.Background(), src, 250*time.Millisecond, func(b int) { got = append(got, b) })
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, []int{0}, got)
}

type chanSource struct {
	events chan ButtonEvent
}

func (s *chanSource) Events() <-chan ButtonEvent { return s.events }
func (s *chanSource) Close() error               { return nil }
