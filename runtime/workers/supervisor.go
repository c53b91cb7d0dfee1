package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-sync/contract"
	"chat-sync/errors"
)

const (
	minRestartDelay = 200 * time.Millisecond
	maxRestartDelay = 5 * time.Second
)

// Supervisor runs workers until their context ends. A worker that panics or
// returns an error is restarted after a delay that doubles while it keeps
// crashing. A worker returning nil is done and never restarted.
type Supervisor struct {
	log *slog.Logger
	wg  sync.WaitGroup

	mu        sync.Mutex
	cancel    context.CancelFunc
	workers   []contract.Worker
	onRestart func(worker string)
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{log: log}
}

// OnRestart registers a hook called with the worker name before each restart.
func (s *Supervisor) OnRestart(hook func(worker string)) *Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRestart = hook
	return s
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts every added worker and blocks until all of them are gone.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	workers := s.workers
	s.mu.Unlock()
	defer cancel()

	for _, worker := range workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

// Start supervises one worker in its own goroutine.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()
		delay := minRestartDelay
		for {
			started := time.Now()
			err := runGuarded(ctx, worker)
			switch {
			case ctx.Err() != nil:
				s.log.Debug("Worker stopped", "worker", name)
				return
			case err == nil:
				s.log.Info("Worker finished", "worker", name)
				return
			}

			if time.Since(started) > maxRestartDelay {
				delay = minRestartDelay
			}
			s.log.Warn("Worker crashed, restarting", "worker", name, "error", err, "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			s.restarted(name)
			delay = nextDelay(delay)
		}
	}()
}

func (s *Supervisor) restarted(name string) {
	s.mu.Lock()
	hook := s.onRestart
	s.mu.Unlock()
	if hook != nil {
		hook(name)
	}
}

// Stop cancels the workers. Run returns once they all exited.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func runGuarded(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

func nextDelay(d time.Duration) time.Duration {
	return min(2*d, maxRestartDelay)
}
