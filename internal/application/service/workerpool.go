package service

import (
	"context"
	"runtime"

	"github.com/panjf2000/ants/v2"
)

// CPUPool bounds the CPU-bound pipeline stages that are submitted to it
// (preprocessing, chunking) to roughly one worker per core. Extraction is not
// submitted to the pool; it runs on the calling goroutine.
type CPUPool struct {
	pool *ants.Pool
}

// NewCPUPool builds the shared bounded pool.
func NewCPUPool() (*CPUPool, error) {
	p, err := ants.NewPool(runtime.NumCPU(), ants.WithPreAlloc(false))
	if err != nil {
		return nil, err
	}
	return &CPUPool{pool: p}, nil
}

// Do runs task on the pool and blocks until it completes or ctx ends.
// Submission itself may block when every worker is busy, which is the
// back-pressure the bounded pool exists to provide.
func (p *CPUPool) Do(ctx context.Context, task func()) error {
	done := make(chan struct{})
	if err := p.pool.Submit(func() {
		defer close(done)
		task()
	}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Release tears the pool down on shutdown.
func (p *CPUPool) Release() {
	p.pool.Release()
}
