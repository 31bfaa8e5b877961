package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/leftmike/rowdis/rowstore"
)

// namespaces maps hash keys to the namespace ids shared by their fields.
// Entries are never removed, so a cached id stays valid.
type namespaces struct {
	e     *Engine
	tbl   *rowstore.Table
	alloc *Allocator
	cache sync.Map
	group singleflight.Group
}

func (ns *namespaces) cached(hashKey []byte) (uint64, bool) {
	if id, ok := ns.cache.Load(string(hashKey)); ok {
		namespaceCounter.WithLabelValues("hit").Inc()
		return id.(uint64), true
	}
	namespaceCounter.WithLabelValues("miss").Inc()
	return 0, false
}

func (ns *namespaces) validate(hashKey []byte) error {
	if len(hashKey) > ns.e.cfg.MaxKeyLen {
		return validationError("key of %d bytes exceeds maximum of %d bytes", len(hashKey),
			ns.e.cfg.MaxKeyLen)
	}
	return nil
}

// Lookup returns the namespace id of hashKey without creating one; false is
// returned if the hash does not exist.
func (ns *namespaces) Lookup(ctx context.Context, hashKey []byte) (uint64, bool, error) {
	if id, ok := ns.cached(hashKey); ok {
		return id, true, nil
	}
	if err := ns.validate(hashKey); err != nil {
		return 0, false, err
	}

	tx, err := ns.e.begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer ns.e.close(tx)

	op, err := tx.Read(ns.tbl, hashKey, rowstore.LockCommitted)
	if err != nil {
		return 0, false, stageError(err, "namespace read")
	}
	err = execute(ctx, tx, rowstore.ExecCommit, "read namespace")
	if err != nil {
		return 0, false, err
	}
	if !op.Found() {
		return 0, false, nil
	}
	id, err := decodeCounter(op.Row())
	if err != nil {
		return 0, false, &Error{Kind: ExecutionError, Message: err.Error(), Err: err}
	}
	ns.cache.Store(string(hashKey), id)
	return id, true, nil
}

// Resolve returns the namespace id of hashKey, creating it on first use.
// Concurrent resolves of the same key share one round trip, and the store
// keeps at most one id per hash key.
func (ns *namespaces) Resolve(ctx context.Context, hashKey []byte) (uint64, error) {
	if id, ok := ns.cached(hashKey); ok {
		return id, nil
	}
	if err := ns.validate(hashKey); err != nil {
		return 0, err
	}

	skey := string(hashKey)
	v, err, _ := ns.group.Do(skey, func() (interface{}, error) {
		if id, ok := ns.cache.Load(skey); ok {
			return id, nil
		}
		id, err := ns.create(ctx, hashKey)
		if err != nil {
			return nil, err
		}
		ns.cache.Store(skey, id)
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

func (ns *namespaces) create(ctx context.Context, hashKey []byte) (uint64, error) {
	candidate, err := ns.alloc.Allocate(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := ns.e.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer ns.e.close(tx)

	op, err := tx.Interpret(ns.tbl, hashKey,
		rowstore.ProgramFunc(func(row []byte, found bool) ([]byte, int64, error) {
			if found {
				id, err := decodeCounter(row)
				if err != nil {
					return nil, 0, err
				}
				return nil, int64(id), nil
			}
			return encodeCounter(candidate), int64(candidate), nil
		}))
	if err != nil {
		return 0, stageError(err, "namespace write")
	}
	err = execute(ctx, tx, rowstore.ExecCommit, "write namespace")
	if err != nil {
		return 0, err
	}
	return uint64(op.Output()), nil
}
