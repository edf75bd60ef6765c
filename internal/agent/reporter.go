package agent

import (
	"sync/atomic"
)

// Reporter publishes local attribute values to the shadow.
type Reporter interface {
	Report(name string, value any)
}

// reporterSlot holds the live session's Reporter. The shadow task installs
// its reconciler after connecting and removes it on exit.
type reporterSlot struct {
	current atomic.Pointer[Reporter]
	logger  Logger
}

func (s *reporterSlot) set(r Reporter) {
	if r == nil {
		s.current.Store(nil)
		return
	}
	s.current.Store(&r)
}

func (s *reporterSlot) clear(r Reporter) {
	p := s.current.Load()
	if p != nil && *p == r {
		s.current.CompareAndSwap(p, nil)
	}
}

func (s *reporterSlot) active() bool {
	return s.current.Load() != nil
}

// Report forwards to the live session, or logs and drops the value.
func (s *reporterSlot) Report(name string, value any) {
	p := s.current.Load()
	if p == nil {
		s.logger.Debug("no shadow session, local report skipped", "attribute", name, "value", value)
		return
	}
	(*p).Report(name, value)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
