// Package supervisor runs one trading worker per configured strategy and
// coordinates their shared lifecycle: staggered starts, collection of
// results, and cooperative shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Runner is anything the supervisor can drive for its lifetime. A nil return
// means a clean exit.
type Runner interface {
	Run(ctx context.Context) error
}

type entry struct {
	name   string
	runner Runner
}

// Supervisor fans out a set of runners and waits for all of them. One
// runner failing does not stop the others; each worker owns exactly one
// symbol and their lifecycles are independent.
type Supervisor struct {
	entries []entry
	stagger time.Duration
	log     *slog.Logger
}

// New creates an empty supervisor. Starts are spaced stagger apart so the
// workers' request bursts do not align.
func New(stagger time.Duration, log *slog.Logger) *Supervisor {
	return &Supervisor{
		stagger: stagger,
		log:     log.With("component", "supervisor"),
	}
}

// Add registers a named runner. Must be called before Run.
func (s *Supervisor) Add(name string, r Runner) {
	s.entries = append(s.entries, entry{name: name, runner: r})
}

// Run starts every registered runner and blocks until all have returned.
// The returned error joins every runner failure; a cancelled ctx with clean
// exits yields nil.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.entries) == 0 {
		return errors.New("no runners registered")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for i, e := range s.entries {
		if i > 0 && s.stagger > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.stagger):
			}
		}

		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			s.log.Info("runner starting", "name", e.name)
			err := e.runner.Run(ctx)
			if err != nil {
				s.log.Error("runner failed", "name", e.name, "err", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
				mu.Unlock()
				return
			}
			s.log.Info("runner finished", "name", e.name)
		}(e)
	}

	wg.Wait()
	return errors.Join(errs...)
}
