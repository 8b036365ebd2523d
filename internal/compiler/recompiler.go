package compiler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const recompileQueueSize = 64

// Recompiler runs compilation out of band so a cache miss never blocks
// the request that noticed it. One worker goroutine drains a channel of
// project IDs; duplicate enqueues for a project already waiting are
// coalesced. A failed compile is logged and forgotten: the cache stays
// invalid and the next miss re-enqueues the project.
type Recompiler struct {
	compiler *Compiler
	logger   *zap.Logger
	timeout  time.Duration

	mu      sync.Mutex
	pending map[string]bool
	jobs    chan string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRecompiler builds the worker; call Start before enqueueing.
func NewRecompiler(c *Compiler, timeout time.Duration, logger *zap.Logger) *Recompiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Recompiler{
		compiler: c,
		logger:   logger,
		timeout:  timeout,
		pending:  make(map[string]bool),
		jobs:     make(chan string, recompileQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (r *Recompiler) Start() {
	go r.run()
}

// Enqueue requests recompilation for a project and returns immediately.
// The request is dropped (with a log line) when the project is already
// queued or the queue is full; either way the caller never waits.
func (r *Recompiler) Enqueue(projectID string) {
	r.mu.Lock()
	if r.pending[projectID] {
		r.mu.Unlock()
		return
	}
	r.pending[projectID] = true
	r.mu.Unlock()

	select {
	case r.jobs <- projectID:
	default:
		r.mu.Lock()
		delete(r.pending, projectID)
		r.mu.Unlock()
		r.logger.Warn("recompile queue full, dropping job",
			zap.String("project_id", projectID))
	}
}

// Stop drains nothing further and waits for the in-flight job.
func (r *Recompiler) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Recompiler) run() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case projectID := <-r.jobs:
			r.mu.Lock()
			delete(r.pending, projectID)
			r.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			start := time.Now()
			err := r.compiler.CompileProject(ctx, projectID)
			cancel()

			if err != nil {
				// Cache stays invalid; the next miss retries.
				r.logger.Warn("background recompile failed",
					zap.String("project_id", projectID),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err))
				continue
			}
			r.logger.Info("background recompile complete",
				zap.String("project_id", projectID),
				zap.Duration("elapsed", time.Since(start)))
		}
	}
}
