package engine

import (
	"context"
)

func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	return e.get(ctx, e.strs, 0, key)
}

func (e *Engine) Set(ctx context.Context, key, value []byte) error {
	_, err := e.set(ctx, e.strs, 0, key, value)
	return err
}

// MGet returns a value for each key, in order; missing keys have a nil
// value.
func (e *Engine) MGet(ctx context.Context, keys [][]byte) ([][]byte, error) {
	pks, err := e.keyRowKeys(0, keys)
	if err != nil {
		return nil, err
	}
	vals, _, err := e.mget(ctx, e.strs, pks)
	return vals, err
}

// MSet sets each key in pairs (key, value, key, value, ...) to its value.
func (e *Engine) MSet(ctx context.Context, pairs [][]byte) error {
	_, err := e.mset(ctx, e.strs, 0, pairs)
	return err
}

func (e *Engine) Incr(ctx context.Context, key []byte) (int64, error) {
	return e.incr(ctx, e.strs, 0, key)
}

// Del deletes keys and returns the number which existed.
func (e *Engine) Del(ctx context.Context, keys [][]byte) (int64, error) {
	var n int64
	for _, key := range keys {
		ok, err := e.del(ctx, e.strs, 0, key)
		if err != nil {
			return 0, err
		}
		if ok {
			n += 1
		}
	}
	return n, nil
}

func (e *Engine) HGet(ctx context.Context, hash, field []byte) ([]byte, bool, error) {
	ns, ok, err := e.ns.Lookup(ctx, hash)
	if err != nil || !ok {
		return nil, false, err
	}
	return e.get(ctx, e.hashes, ns, field)
}

// HMGet returns a value for each field of hash, in order; missing fields have
// a nil value.
func (e *Engine) HMGet(ctx context.Context, hash []byte, fields [][]byte) ([][]byte, error) {
	ns, ok, err := e.ns.Lookup(ctx, hash)
	if err != nil {
		return nil, err
	} else if !ok {
		return make([][]byte, len(fields)), nil
	}
	pks, err := e.keyRowKeys(ns, fields)
	if err != nil {
		return nil, err
	}
	vals, _, err := e.mget(ctx, e.hashes, pks)
	return vals, err
}

// HSet sets each field in pairs (field, value, field, value, ...) of hash,
// and returns the number of fields which were created.
func (e *Engine) HSet(ctx context.Context, hash []byte, pairs [][]byte) (int64, error) {
	ns, err := e.ns.Resolve(ctx, hash)
	if err != nil {
		return 0, err
	}
	return e.mset(ctx, e.hashes, ns, pairs)
}

func (e *Engine) HIncr(ctx context.Context, hash, field []byte) (int64, error) {
	ns, err := e.ns.Resolve(ctx, hash)
	if err != nil {
		return 0, err
	}
	return e.incr(ctx, e.hashes, ns, field)
}

// HDel deletes fields of hash and returns the number which existed.
func (e *Engine) HDel(ctx context.Context, hash []byte, fields [][]byte) (int64, error) {
	ns, ok, err := e.ns.Lookup(ctx, hash)
	if err != nil || !ok {
		return 0, err
	}
	var n int64
	for _, field := range fields {
		ok, err := e.del(ctx, e.hashes, ns, field)
		if err != nil {
			return 0, err
		}
		if ok {
			n += 1
		}
	}
	return n, nil
}

func (e *Engine) keyRowKeys(ns uint64, keys [][]byte) ([][]byte, error) {
	pks := make([][]byte, 0, len(keys))
	for _, key := range keys {
		pk, err := e.keyRowKey(ns, key)
		if err != nil {
			return nil, err
		}
		pks = append(pks, pk)
	}
	return pks, nil
}
