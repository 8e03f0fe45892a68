// Package cron runs the periodic background monitors.
package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/logging"
)

// Job is one periodic unit of work. It receives the scheduler's run context.
type Job func(ctx context.Context)

type entry struct {
	name     string
	interval time.Duration
	fn       Job
	id       rcron.EntryID
}

// Scheduler runs named jobs at fixed intervals. A job never overlaps itself:
// a tick that arrives while the previous run is still busy is skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *rcron.Cron
	entries map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	l := logging.OrNop(logger).Named("cron")
	adapter := zapLogger{l.Sugar()}
	return &Scheduler{
		cron: rcron.New(
			rcron.WithLogger(adapter),
			rcron.WithChain(rcron.Recover(adapter), rcron.SkipIfStillRunning(adapter)),
		),
		entries: make(map[string]*entry),
		logger:  l,
	}
}

// Every registers fn under name. Intervals are rounded down to whole seconds,
// with a floor of one second.
func (s *Scheduler) Every(name string, interval time.Duration, fn Job) error {
	if interval < time.Second {
		interval = time.Second
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("cron: job %q already registered", name)
	}
	e := &entry{name: name, interval: interval, fn: fn}
	id, err := s.cron.AddFunc("@every "+interval.String(), func() { s.run(e) })
	if err != nil {
		return fmt.Errorf("cron: register %q: %w", name, err)
	}
	e.id = id
	s.entries[name] = e
	s.logger.Info("job registered", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) run(e *entry) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	e.fn(ctx)
}

// RunNow executes the named job synchronously, outside the schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	s.run(e)
	return nil
}

func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start begins scheduling. Jobs stop receiving ticks when ctx is cancelled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.Jobs())))
}

// Stop cancels the job context and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z zapLogger) Info(msg string, keysAndValues ...any) {
	z.s.Debugw(msg, keysAndValues...)
}

func (z zapLogger) Error(err error, msg string, keysAndValues ...any) {
	z.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
