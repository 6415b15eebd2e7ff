package tx

import (
	"context"
	"sync"
)

// Runner is the transactional boundary used by services.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type undoKey struct{}

type undoLog struct {
	fns []func()
}

// OnRollback registers fn to run if the enclosing MemoryRunner callback
// fails. Outside a MemoryRunner it does nothing. In-memory stores register
// the inverse of each write.
func OnRollback(ctx context.Context, fn func()) {
	if log, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		log.fns = append(log.fns, fn)
	}
}

// MemoryRunner serialises callbacks with a single mutex and, when a callback
// fails, replays the undo functions stores registered via OnRollback in
// reverse order. Callbacks must not call RunInTx again.
type MemoryRunner struct {
	mu sync.Mutex
}

func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	log := &undoLog{}
	if err := fn(context.WithValue(ctx, undoKey{}, log)); err != nil {
		for i := len(log.fns) - 1; i >= 0; i-- {
			log.fns[i]()
		}
		return err
	}
	return nil
}
