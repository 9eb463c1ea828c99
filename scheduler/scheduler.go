package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is a scheduled task body.
type TaskFn func()

// Scheduler runs named periodic and one-shot tasks. Quest engines register a
// ticker per active quest and remove it on settlement, so registration and
// removal happen constantly at runtime, not just at startup.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]chan struct{}
	delays  map[string]*time.Timer
	logger  *zap.Logger
	done    chan struct{}
}

// New creates an empty Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tickers: make(map[string]chan struct{}),
		delays:  make(map[string]*time.Timer),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// AddTicker runs fn on a fixed interval under the given name, replacing any
// existing ticker with that name. A panicking run is logged and the ticker
// keeps firing.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stop, ok := s.tickers[name]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	s.tickers[name] = stop

	go func() {
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-tk.C:
				s.run(name, fn)
			case <-stop:
				return
			case <-s.done:
				return
			}
		}
	}()
	s.logger.Debug("ticker registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after delay, replacing any pending delay with the
// same name.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.delays[name]; ok {
		old.Stop()
	}
	s.delays[name] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.delays, name)
		s.mu.Unlock()
		s.run(name, fn)
	})
}

func (s *Scheduler) run(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked",
				zap.String("task", name), zap.Any("recover", r))
		}
	}()
	fn()
}

// Remove stops the ticker or pending delay with the given name. Removing an
// unknown name is a no-op.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.tickers[name]; ok {
		close(stop)
		delete(s.tickers, name)
	}
	if t, ok := s.delays[name]; ok {
		t.Stop()
		delete(s.delays, name)
	}
}

// Stop halts every task. Idempotent.
func (s *Scheduler) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// ListTickers returns the names of the registered tickers.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	return names
}
