package hardware

import (
	"sync"
	"time"
)

// SimLine is an in-memory OutputLine that records every value written.
type SimLine struct {
	mu      sync.Mutex
	value   int
	history []int
	closed  bool
}

// SetValue records value.
func (l *SimLine) SetValue(value int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.value = value
	l.history = append(l.history, value)
	return nil
}

// Value returns the last value written.
func (l *SimLine) Value() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	return l.value, nil
}

// History returns every value written, oldest first.
func (l *SimLine) History() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.history...)
}

// Close marks the line closed.
func (l *SimLine) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// SimPWM is an in-memory PWM channel.
type SimPWM struct {
	mu      sync.Mutex
	duty    int
	history []int
	closed  bool
}

// SetDuty records duty after clamping it like SysfsPWM.
func (p *SimPWM) SetDuty(duty int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.duty = clamp(duty, 0, MaxDuty)
	p.history = append(p.history, p.duty)
	return nil
}

// Duty returns the current duty cycle.
func (p *SimPWM) Duty() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}

// History returns every duty applied, oldest first.
func (p *SimPWM) History() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.history...)
}

// Close marks the channel closed.
func (p *SimPWM) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// SimThermometer returns a settable reading.
type SimThermometer struct {
	mu      sync.Mutex
	celsius float64
	err     error
}

// Set changes the reading and clears any injected error.
func (t *SimThermometer) Set(celsius float64) {
	t.mu.Lock()
	t.celsius, t.err = celsius, nil
	t.mu.Unlock()
}

// Fail makes subsequent reads return err.
func (t *SimThermometer) Fail(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

// Celsius returns the current reading.
func (t *SimThermometer) Celsius() (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.celsius, t.err
}

// SimMotor records the last command.
type SimMotor struct {
	mu  sync.Mutex
	on  bool
	rpm int
}

// SetRunning records the command.
func (m *SimMotor) SetRunning(on bool, rpm int) error {
	m.mu.Lock()
	m.on, m.rpm = on, rpm
	m.mu.Unlock()
	return nil
}

// State returns the last command.
func (m *SimMotor) State() (on bool, rpm int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on, m.rpm
}

// SimButtons injects button edges.
type SimButtons struct {
	mu     sync.Mutex
	events chan ButtonEvent
	clock  time.Duration
}

// NewSimButtons returns a source with a buffered edge queue.
func NewSimButtons() *SimButtons {
	return &SimButtons{events: make(chan ButtonEvent, buttonQueueSize)}
}

// Press queues a press and release of button held for hold.
func (b *SimButtons) Press(button int, hold time.Duration) {
	b.mu.Lock()
	b.clock += time.Second
	down := b.clock
	b.clock += hold
	up := b.clock
	b.mu.Unlock()

	b.events <- ButtonEvent{Button: button, Pressed: true, At: down}
	b.events <- ButtonEvent{Button: button, Pressed: false, At: up}
}

// Events returns the edge stream.
func (b *SimButtons) Events() <-chan ButtonEvent {
	return b.events
}

// Close is a no-op; the channel stays open for restarted watchers.
func (b *SimButtons) Close() error {
	return nil
}

// Sim is a fully simulated board.
type Sim struct {
	RedLED      *SimLine
	IRLED       *SimLine
	Light       *SimPWM
	Thermometer *SimThermometer
	CPU         *SimThermometer
	Motor       *SimMotor
	Buttons     *SimButtons
}

// NewSim returns simulated peripherals at room temperature.
func NewSim() *Sim {
	s := &Sim{
		RedLED:      &SimLine{},
		IRLED:       &SimLine{},
		Light:       &SimPWM{},
		Thermometer: &SimThermometer{},
		CPU:         &SimThermometer{},
		Motor:       &SimMotor{},
		Buttons:     NewSimButtons(),
	}
	s.Thermometer.Set(21.5)
	s.CPU.Set(45.0)
	return s
}

// Peripherals returns the handles for NewBoard.
func (s *Sim) Peripherals() *Peripherals {
	p := &Peripherals{
		RedLED:      s.RedLED,
		IRLED:       s.IRLED,
		Light:       s.Light,
		Thermometer: s.Thermometer,
		CPU:         s.CPU,
		Motor:       s.Motor,
		Buttons:     s.Buttons,
	}
	p.addCloser(s.RedLED)
	p.addCloser(s.IRLED)
	p.addCloser(s.Light)
	return p
}
