package hardware

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// buttonQueueSize bounds buffered edges; further edges are dropped until the
// watcher catches up.
const buttonQueueSize = 16

// requestOutput claims offset on chip as an output driven low.
func requestOutput(chip *gpiocdev.Chip, offset int) (*gpiocdev.Line, error) {
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output line %d: %w", offset, err)
	}
	return line, nil
}

// GPIOButtons watches pull-up push buttons on a GPIO chip. The falling edge
// is the press.
type GPIOButtons struct {
	mu     sync.Mutex
	lines  []*gpiocdev.Line
	index  map[int]int
	events chan ButtonEvent
	closed bool
}

// OpenGPIOButtons requests offsets as edge-detecting inputs with pull-ups.
func OpenGPIOButtons(chip *gpiocdev.Chip, offsets []int) (*GPIOButtons, error) {
	b := &GPIOButtons{
		index:  make(map[int]int, len(offsets)),
		events: make(chan ButtonEvent, buttonQueueSize),
	}
	for i, offset := range offsets {
		b.index[offset] = i
	}

	for _, offset := range offsets {
		line, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(b.handleEvent),
		)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("request button line %d: %w", offset, err)
		}
		b.mu.Lock()
		b.lines = append(b.lines, line)
		b.mu.Unlock()
	}
	return b, nil
}

func (b *GPIOButtons) handleEvent(evt gpiocdev.LineEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	button, ok := b.index[evt.Offset]
	if !ok {
		return
	}
	select {
	case b.events <- ButtonEvent{
		Button:  button,
		Pressed: evt.Type == gpiocdev.LineEventFallingEdge,
		At:      evt.Timestamp,
	}:
	default:
	}
}

// Events returns the edge stream.
func (b *GPIOButtons) Events() <-chan ButtonEvent {
	return b.events
}

// Close releases the button lines.
func (b *GPIOButtons) Close() error {
	b.mu.Lock()
	lines := b.lines
	b.lines = nil
	b.closed = true
	b.mu.Unlock()

	var firstErr error
	for _, line := range lines {
		if err := line.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
