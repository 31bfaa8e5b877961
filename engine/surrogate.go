package engine

import (
	"context"
	"sync"
	"time"

	retry "github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/rowdis/rowstore"
)

// Allocator issues surrogate ids from a counter row in the sequences table.
// Ids are fetched from the store a block at a time; zero is never issued.
type Allocator struct {
	e      *Engine
	scope  string
	mutex  sync.Mutex
	next   uint64
	limit  uint64
	refill int
}

func (e *Engine) newAllocator(scope string) *Allocator {
	return &Allocator{
		e:      e,
		scope:  scope,
		refill: e.cfg.Prefetch,
	}
}

func (a *Allocator) Allocate(ctx context.Context) (uint64, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.next == a.limit {
		first, err := a.fetch(ctx)
		if err != nil {
			return 0, err
		}
		a.next = first
		a.limit = first + uint64(a.refill)
	}

	id := a.next
	a.next += 1
	return id, nil
}

// fetch reserves the next block of ids. A missing counter is reseeded to 1
// and the fetch tried once more.
func (a *Allocator) fetch(ctx context.Context) (uint64, error) {
	var first uint64
	b := retry.WithMaxRetries(1, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		first, err = a.reserve(ctx)
		if err != nil && rowstore.IsNoDataFound(err) {
			if err := a.reseed(ctx); err != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return 0, backendError(ExecutionError, "failed to allocate surrogate id for "+a.scope,
			err)
	}
	return first, nil
}

func (a *Allocator) reserve(ctx context.Context) (uint64, error) {
	tx, err := a.e.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer a.e.close(tx)

	refill := uint64(a.refill)
	op, err := tx.Interpret(a.e.seqs, []byte(a.scope),
		rowstore.ProgramFunc(func(row []byte, found bool) ([]byte, int64, error) {
			if !found {
				return nil, 0, rowstore.NoData("no counter for %s", a.scope)
			}
			n, err := decodeCounter(row)
			if err != nil {
				return nil, 0, err
			}
			return encodeCounter(n + refill), int64(n), nil
		}))
	if err != nil {
		return 0, stageError(err, "counter update")
	}
	err = tx.Execute(ctx, rowstore.ExecCommit)
	if err != nil {
		return 0, err
	}

	allocatorRefillCounter.WithLabelValues(a.scope, "fetch").Inc()
	return uint64(op.Output()), nil
}

func (a *Allocator) reseed(ctx context.Context) error {
	tx, err := a.e.begin(ctx)
	if err != nil {
		return err
	}
	defer a.e.close(tx)

	_, err = tx.Write(a.e.seqs, []byte(a.scope), encodeCounter(1))
	if err != nil {
		return stageError(err, "counter reseed")
	}
	err = tx.Execute(ctx, rowstore.ExecCommit)
	if err != nil {
		return err
	}

	allocatorRefillCounter.WithLabelValues(a.scope, "reseed").Inc()
	log.WithField("scope", a.scope).Info("engine: reseeded surrogate counter")
	return nil
}
