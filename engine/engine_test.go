package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leftmike/rowdis/kv"
	"github.com/leftmike/rowdis/rowstore"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FaultFatal = false
	return cfg
}

func openEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()

	st, err := kv.MakeBTreeKV()
	require.NoError(t, err)
	rst, err := rowstore.Open(st, false)
	require.NoError(t, err)
	e, err := Open(rst, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.Equal(t, int64(0), e.OpenTransactions(), "open transactions")
		rst.Close()
	})
	return e
}

func makeValue(n int, seed byte) []byte {
	value := make([]byte, n)
	for i := range value {
		value[i] = seed + byte(i%251)
	}
	return value
}

// extRows returns the surrogate ids of the extension rows of f, with the
// number of rows for each.
func extRows(t *testing.T, e *Engine, f *family) map[uint64]int {
	t.Helper()

	sids := map[uint64]int{}
	err := e.st.Scan(context.Background(), f.values, nil,
		func(key, row []byte) error {
			sids[binary.BigEndian.Uint64(key)] += 1
			return nil
		})
	require.NoError(t, err)
	return sids
}

func keyRow(t *testing.T, e *Engine, f *family, ns uint64, key string) (*KeyRow, bool) {
	t.Helper()

	pk, err := e.keyRowKey(ns, []byte(key))
	require.NoError(t, err)
	kr, found, err := e.readSimple(context.Background(), f, pk)
	require.NoError(t, err)
	return kr, found
}

func TestOpenConfig(t *testing.T) {
	cases := []struct {
		fn   func(cfg *Config)
		fail bool
	}{
		{fn: func(cfg *Config) {}},
		{fn: func(cfg *Config) { cfg.WriteBatch = 0 }, fail: true},
		{fn: func(cfg *Config) { cfg.ReadBatch = 0 }, fail: true},
		{fn: func(cfg *Config) { cfg.Window = 0 }, fail: true},
		{fn: func(cfg *Config) { cfg.Window = -1 }, fail: true},
		{fn: func(cfg *Config) { cfg.Prefetch = 0 }, fail: true},
		{fn: func(cfg *Config) { cfg.MaxKeyLen = 0 }, fail: true},
		{fn: func(cfg *Config) { cfg.MaxKeyLen = MaxFieldLen + 1 }, fail: true},
		{fn: func(cfg *Config) { cfg.StringInline = MaxFieldLen + 1 }, fail: true},
		{fn: func(cfg *Config) { cfg.HashInline = MaxFieldLen + 1 }, fail: true},
		{fn: func(cfg *Config) { cfg.ExtensionCapacity = 0 }, fail: true},
		{fn: func(cfg *Config) { cfg.ExtensionCapacity = MaxFieldLen + 1 }, fail: true},
		{fn: func(cfg *Config) { cfg.MaxValueLen = -1 }, fail: true},
		{fn: func(cfg *Config) { cfg.MaxValueLen = 1 << 32 }, fail: true},
		{fn: func(cfg *Config) { cfg.MaxOutstandingBytes = -1 }, fail: true},
		{fn: func(cfg *Config) {
			cfg.WriteBatch = 1
			cfg.ReadBatch = 1
			cfg.Window = 1
			cfg.Prefetch = 1
			cfg.StringInline = MaxFieldLen
			cfg.HashInline = MaxFieldLen
			cfg.ExtensionCapacity = MaxFieldLen
			cfg.MaxValueLen = 1<<32 - 1
			cfg.MaxOutstandingBytes = 0
		}},
	}

	for i, c := range cases {
		st, err := kv.MakeBTreeKV()
		require.NoError(t, err)
		rst, err := rowstore.Open(st, false)
		require.NoError(t, err)

		cfg := testConfig()
		c.fn(&cfg)
		e, err := Open(rst, cfg)
		if c.fail {
			assert.Nil(t, e, "case %d", i)
			assert.True(t, IsKind(err, ValidationError), "case %d: Open() got %v", i, err)
			tables := 0
			for _, name := range []string{StringKeysTable, SequencesTable} {
				if _, err := rst.Table(name); err == nil {
					tables += 1
				}
			}
			assert.Equal(t, 0, tables, "case %d: tables created", i)
		} else {
			assert.NoError(t, err, "case %d", i)
			assert.NotNil(t, e, "case %d", i)
		}
		rst.Close()
	}
}

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig())

	sizes := []int{0, 1, 100, 4096, 4097, 5000, 4096 + 29500, 4096 + 29500 + 1, 200000}
	for i, n := range sizes {
		key := []byte(fmt.Sprintf("key-%d", n))
		value := makeValue(n, byte(i))
		require.NoError(t, e.Set(ctx, key, value), "Set(%s)", key)

		got, found, err := e.Get(ctx, key)
		require.NoError(t, err, "Get(%s)", key)
		require.True(t, found, "Get(%s) not found", key)
		assert.NotNil(t, got)
		assert.True(t, bytes.Equal(value, got), "Get(%s) value", key)

		kr, found := keyRow(t, e, e.strs, 0, string(key))
		require.True(t, found)
		assert.Equal(t, uint32(RowCount(n, 4096, 29500)), kr.RowCount, "%s row count", key)
		assert.Equal(t, uint32(n), kr.TotalLen)
		assert.Equal(t, kr.RowCount == 0, kr.SurrogateID == 0)
	}

	_, found, err := e.Get(ctx, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestScenarioLargeValue(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig())

	value := makeValue(5000, 'a')
	require.NoError(t, e.Set(ctx, []byte("a"), value))
	kr, _ := keyRow(t, e, e.strs, 0, "a")
	assert.Equal(t, uint32(1), kr.RowCount)
	assert.Equal(t, 4096, len(kr.Inline))

	got, found, err := e.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, bytes.Equal(value, got))
}

func TestOverwrite(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig())

	sizes := []int{100000, 40000, 10, 70000, 70000, 5000, 0, 300000, 4096}
	var lastSID uint64
	for i, n := range sizes {
		value := makeValue(n, byte(i))
		require.NoError(t, e.Set(ctx, []byte("k"), value), "Set(k, %d)", n)

		got, found, err := e.Get(ctx, []byte("k"))
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, bytes.Equal(value, got), "Get(k) after Set(k, %d)", n)

		kr, _ := keyRow(t, e, e.strs, 0, "k")
		rows := RowCount(n, 4096, 29500)
		sids := extRows(t, e, e.strs)
		if rows == 0 {
			assert.Empty(t, sids, "extension rows after Set(k, %d)", n)
		} else {
			assert.Equal(t, map[uint64]int{kr.SurrogateID: rows}, sids,
				"extension rows after Set(k, %d)", n)
			if lastSID != 0 {
				assert.NotContains(t, sids, lastSID)
			}
		}
		lastSID = kr.SurrogateID
	}
}

func TestOverwriteCascadeFails(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig())

	old := makeValue(4096+5*29500, 'o')
	require.NoError(t, e.Set(ctx, []byte("k"), old))
	kr, _ := keyRow(t, e, e.strs, 0, "k")
	deleteExtRow(t, e, e.strs, kr.SurrogateID, 2)

	conflicts := promtestutil.ToFloat64(conflictCounter.WithLabelValues(e.strs.name))
	err := e.Set(ctx, []byte("k"), []byte("new"))
	require.Error(t, err)
	assert.True(t, IsKind(err, ExecutionError), "Set(k) got %v", err)
	assert.False(t, IsKind(err, ConflictError))
	code, _ := rowstore.ErrorCode(err)
	assert.Equal(t, rowstore.CodeNoDataFound, code)
	assert.Equal(t, conflicts+1,
		promtestutil.ToFloat64(conflictCounter.WithLabelValues(e.strs.name)),
		"conflicts retried")

	after, found := keyRow(t, e, e.strs, 0, "k")
	require.True(t, found)
	assert.Equal(t, kr.SurrogateID, after.SurrogateID)
	assert.Equal(t, kr.RowCount, after.RowCount)
	assert.Equal(t, map[uint64]int{kr.SurrogateID: 4}, extRows(t, e, e.strs))
}

func TestDel(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig())

	require.NoError(t, e.Set(ctx, []byte("small"), []byte("abc")))
	require.NoError(t, e.Set(ctx, []byte("large"), makeValue(100000, 1)))
	assert.Len(t, extRows(t, e, e.strs), 1)

	n, err := e.Del(ctx, [][]byte{[]byte("small"), []byte("large"), []byte("missing")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Empty(t, extRows(t, e, e.strs))

	_, found, err := e.Get(ctx, []byte("large"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIncr(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig())

	n, err := e.Incr(ctx, []byte("counter"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	val, _, _ := e.Get(ctx, []byte("counter"))
	assert.Equal(t, "1", string(val))

	require.NoError(t, e.Set(ctx, []byte("counter"), []byte("41")))
	n, err = e.Incr(ctx, []byte("counter"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	val, _, _ = e.Get(ctx, []byte("counter"))
	assert.Equal(t, "42", string(val))

	require.NoError(t, e.Set(ctx, []byte("neg"), []byte("-5")))
	n, err = e.Incr(ctx, []byte("neg"))
	require.NoError(t, err)
	assert.Equal(t, int64(-4), n)

	for _, bad := range []string{"abc", "", "1.5", "9223372036854775807",
		"99999999999999999999"} {

		require.NoError(t, e.Set(ctx, []byte("bad"), []byte(bad)))
		_, err = e.Incr(ctx, []byte("bad"))
		assert.True(t, IsKind(err, NotIntegerError), "Incr(%q) got %v", bad, err)
		val, _, _ = e.Get(ctx, []byte("bad"))
		assert.Equal(t, bad, string(val))
	}

	large := makeValue(5000, '0')
	require.NoError(t, e.Set(ctx, []byte("large"), large))
	before, _ := keyRow(t, e, e.strs, 0, "large")
	_, err = e.Incr(ctx, []byte("large"))
	assert.True(t, IsKind(err, MultiRowIncrementError), "Incr(large) got %v", err)
	after, _ := keyRow(t, e, e.strs, 0, "large")
	assert.Equal(t, before, after)
	val, _, _ = e.Get(ctx, []byte("large"))
	assert.True(t, bytes.Equal(large, val))
}

func TestConcurrentIncr(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := e.Incr(ctx, []byte("n"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	val, _, err := e.Get(ctx, []byte("n"))
	require.NoError(t, err)
	assert.Equal(t, "200", string(val))
}

func TestMGet(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Window = 3
	cfg.MaxOutstandingBytes = 40000
	e := openEngine(t, cfg)

	var keys [][]byte
	want := map[string][]byte{}
	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("k%d", i))
		keys = append(keys, key)
		var value []byte
		switch i % 4 {
		case 0:
			continue
		case 1:
			value = []byte(fmt.Sprintf("v%d", i))
		case 2:
			value = makeValue(5000+i, byte(i))
		case 3:
			value = makeValue(4096+5*29500+i, byte(i))
		}
		require.NoError(t, e.Set(ctx, key, value))
		want[string(key)] = value
	}
	keys = append(keys, keys[2], []byte("missing"), keys[1])

	pks, err := e.keyRowKeys(0, keys)
	require.NoError(t, err)
	vals, p, err := e.mget(ctx, e.strs, pks)
	require.NoError(t, err)
	require.Len(t, vals, len(keys))
	for i, key := range keys {
		value, ok := want[string(key)]
		if !ok {
			assert.Nil(t, vals[i], "MGet(%s)", key)
		} else {
			assert.True(t, bytes.Equal(value, vals[i]), "MGet(%s)", key)
		}
	}
	assert.LessOrEqual(t, p.peak, int64(3), "peak open transactions")
	assert.Equal(t, p.opened, p.closed)
	assert.Equal(t, int64(0), p.bytes)
	assert.Less(t, p.peakBytes,
		cfg.MaxOutstandingBytes+int64(cfg.ReadBatch*cfg.ExtensionCapacity),
		"peak outstanding bytes")

	vals, err = e.MGet(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, vals)
}

func TestScenarioMGet(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig())

	a := makeValue(5000, 'a')
	require.NoError(t, e.Set(ctx, []byte("a"), a))
	require.NoError(t, e.Set(ctx, []byte("b"), []byte("hello")))
	require.NoError(t, e.Set(ctx, []byte("empty"), []byte{}))

	vals, err := e.MGet(ctx, [][]byte{[]byte("a"), []byte("missing"), []byte("b"),
		[]byte("empty")})
	require.NoError(t, err)
	require.Len(t, vals, 4)
	assert.True(t, bytes.Equal(a, vals[0]))
	assert.Nil(t, vals[1])
	assert.Equal(t, []byte("hello"), vals[2])
	assert.NotNil(t, vals[3])
	assert.Empty(t, vals[3])
}

func TestMGetFailFast(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig())

	require.NoError(t, e.Set(ctx, []byte("a"), []byte("1")))
	e.st.Close()

	_, err := e.MGet(ctx, [][]byte{[]byte("a"), []byte("b")})
	assert.True(t, IsKind(err, TransactionError), "MGet() on closed store got %v", err)
	code, _ := rowstore.ErrorCode(err)
	assert.Equal(t, rowstore.CodeStoreClosed, code)

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.MGet(ctx, [][]byte{[]byte("a")})
	assert.Error(t, err)
}

func TestMGetOutstandingBytes(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Window = 10
	cfg.MaxOutstandingBytes = 40000
	e := openEngine(t, cfg)

	var keys [][]byte
	for i := 0; i < 8; i++ {
		key := []byte(fmt.Sprintf("big%d", i))
		keys = append(keys, key)
		require.NoError(t, e.Set(ctx, key, makeValue(4096+6*29500, byte(i))))
	}

	pks, err := e.keyRowKeys(0, keys)
	require.NoError(t, err)
	vals, p, err := e.mget(ctx, e.strs, pks)
	require.NoError(t, err)
	for i, val := range vals {
		assert.True(t, bytes.Equal(makeValue(4096+6*29500, byte(i)), val), "MGet(%s)",
			keys[i])
	}

	batchBytes := int64(cfg.ReadBatch * cfg.ExtensionCapacity)
	assert.Greater(t, p.peakBytes, int64(0))
	assert.Less(t, p.peakBytes, cfg.MaxOutstandingBytes+batchBytes, "peak outstanding bytes")
	assert.Equal(t, int64(0), p.bytes)
}

func deleteExtRow(t *testing.T, e *Engine, f *family, sid uint64, ordinal uint32) {
	t.Helper()

	ctx := context.Background()
	tx, err := e.st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Close()
	_, err = tx.Delete(f.values, encodeExtRowKey(sid, ordinal))
	require.NoError(t, err)
	require.NoError(t, tx.Execute(ctx, rowstore.ExecCommit))
}

func TestMGetExtensionFailure(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.MaxOutstandingBytes = 40000
	e := openEngine(t, cfg)

	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	for i, key := range keys[:3] {
		require.NoError(t, e.Set(ctx, key, makeValue(4096+5*29500, byte(i))))
	}
	require.NoError(t, e.Set(ctx, keys[3], []byte("simple")))
	kr, found := keyRow(t, e, e.strs, 0, "b")
	require.True(t, found)
	deleteExtRow(t, e, e.strs, kr.SurrogateID, 1)

	vals, err := e.MGet(ctx, keys)
	assert.Nil(t, vals)
	require.Error(t, err)
	assert.True(t, IsKind(err, ExecutionError), "MGet() got %v", err)
	code, _ := rowstore.ErrorCode(err)
	assert.Equal(t, rowstore.CodeNoDataFound, code)
	assert.Contains(t, err.Error(), "BACKEND(626)")
	assert.Equal(t, int64(0), e.OpenTransactions())
	assert.Equal(t, int64(0), e.st.OpenTransactions())

	// No locks are left behind on the other keys.
	require.NoError(t, e.Set(ctx, keys[0], []byte("overwritten")))
	require.NoError(t, e.Set(ctx, keys[2], makeValue(40000, 'c')))
	vals, err = e.MGet(ctx, [][]byte{keys[0], keys[2], keys[3]})
	require.NoError(t, err)
	assert.Equal(t, "overwritten", string(vals[0]))
	assert.True(t, bytes.Equal(makeValue(40000, 'c'), vals[1]))
	assert.Equal(t, "simple", string(vals[2]))
}

func TestMSet(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Window = 4
	e := openEngine(t, cfg)

	var pairs [][]byte
	for i := 0; i < 30; i++ {
		pairs = append(pairs, []byte(fmt.Sprintf("k%d", i)), makeValue(i*3000, byte(i)))
	}
	pairs = append(pairs, []byte("k1"), []byte("last"))
	require.NoError(t, e.MSet(ctx, pairs))

	for i := 0; i < 30; i++ {
		val, found, err := e.Get(ctx, []byte(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
		require.True(t, found)
		if i == 1 {
			assert.Equal(t, "last", string(val))
		} else {
			assert.True(t, bytes.Equal(makeValue(i*3000, byte(i)), val), "Get(k%d)", i)
		}
	}

	err := e.MSet(ctx, [][]byte{[]byte("ok"), []byte("1"), make([]byte, 3001), []byte("2")})
	assert.True(t, IsKind(err, ValidationError), "MSet() long key got %v", err)
}

func TestHashes(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig())

	n, err := e.HSet(ctx, []byte("h"), [][]byte{[]byte("f1"), []byte("v1")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	val, found, err := e.HGet(ctx, []byte("h"), []byte("f1"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v1", string(val))

	_, found, err = e.HGet(ctx, []byte("h"), []byte("unknown"))
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = e.HGet(ctx, []byte("nohash"), []byte("f1"))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = e.Get(ctx, []byte("f1"))
	require.NoError(t, err)
	assert.False(t, found, "hash field visible as string key")

	large := makeValue(60000, 3)
	n, err = e.HSet(ctx, []byte("h"), [][]byte{[]byte("f1"), []byte("v2"), []byte("f2"), large})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	vals, err := e.HMGet(ctx, []byte("h"), [][]byte{[]byte("f2"), []byte("f0"), []byte("f1")})
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.True(t, bytes.Equal(large, vals[0]))
	assert.Nil(t, vals[1])
	assert.Equal(t, "v2", string(vals[2]))

	kr, _ := keyRow(t, e, e.hashes, 1, "f2")
	assert.Equal(t, uint32(RowCount(60000, 26500, 29500)), kr.RowCount)

	vals, err = e.HMGet(ctx, []byte("nohash"), [][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{nil, nil}, vals)

	n, err = e.HIncr(ctx, []byte("h2"), []byte("count"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = e.HIncr(ctx, []byte("h2"), []byte("count"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, err = e.HIncr(ctx, []byte("h"), []byte("f2"))
	assert.True(t, IsKind(err, MultiRowIncrementError))

	n, err = e.HDel(ctx, []byte("h"), [][]byte{[]byte("f2"), []byte("f9")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, extRows(t, e, e.hashes))
	n, err = e.HDel(ctx, []byte("nohash"), [][]byte{[]byte("f1")})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestNamespaces(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig())

	_, ok, err := e.ns.Lookup(ctx, []byte("h"))
	require.NoError(t, err)
	assert.False(t, ok)

	ids := make([]uint64, 16)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := e.ns.Resolve(ctx, []byte("h"))
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.NotEqual(t, uint64(0), ids[0])

	e.ns.cache.Delete("h")
	id, ok, err := e.ns.Lookup(ctx, []byte("h"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ids[0], id)

	e.ns.cache.Delete("h")
	id, err = e.ns.Resolve(ctx, []byte("h"))
	require.NoError(t, err)
	assert.Equal(t, ids[0], id)

	other, err := e.ns.Resolve(ctx, []byte("other"))
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], other)

	_, err = e.ns.Resolve(ctx, make([]byte, 3001))
	assert.True(t, IsKind(err, ValidationError))
}

func TestAllocator(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Prefetch = 2
	e := openEngine(t, cfg)

	a := e.newAllocator("test")
	for want := uint64(1); want <= 5; want++ {
		id, err := a.Allocate(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	b := e.newAllocator("test")
	id, err := b.Allocate(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)

	c := e.newAllocator("other")
	id, err = c.Allocate(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.MaxValueLen = 1000
	e := openEngine(t, cfg)

	err := e.Set(ctx, make([]byte, 3001), []byte("v"))
	assert.True(t, IsKind(err, ValidationError), "Set() long key got %v", err)
	err = e.Set(ctx, []byte("k"), make([]byte, 1001))
	assert.True(t, IsKind(err, ValidationError), "Set() long value got %v", err)
	_, _, err = e.Get(ctx, make([]byte, 3001))
	assert.True(t, IsKind(err, ValidationError), "Get() long key got %v", err)
	_, err = e.MGet(ctx, [][]byte{[]byte("a"), make([]byte, 3001)})
	assert.True(t, IsKind(err, ValidationError), "MGet() long key got %v", err)
}

func TestErrorMessage(t *testing.T) {
	err := backendError(ExecutionError, "failed to write key row",
		rowstore.ExitNOK(1234, "something broke"))
	assert.Equal(t, "failed to write key row; BACKEND(1234) something broke", err.Error())
	assert.True(t, IsKind(err, ExecutionError))

	err = backendError(ExecutionError, "failed to write key row",
		rowstore.ExitNOK(rowstore.CodeForeignKeyRestrict, "referenced"))
	assert.True(t, IsKind(err, ConflictError))

	err = validationError("key of %d bytes exceeds maximum of %d bytes", 3001, 3000)
	assert.Equal(t, "key of 3001 bytes exceeds maximum of 3000 bytes", err.Error())
}

func TestTableRows(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, testConfig())

	require.NoError(t, e.Set(ctx, []byte("a"), []byte("1")))
	require.NoError(t, e.Set(ctx, []byte("b"), makeValue(4096+2*29500, 'b')))
	_, err := e.HSet(ctx, []byte("h"), [][]byte{[]byte("f1"), []byte("v1"), []byte("f2"),
		makeValue(26500+1, 'f')})
	require.NoError(t, err)

	counts, err := e.TableRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		StringKeysTable:   2,
		StringValuesTable: 2,
		HashKeysTable:     1,
		HashFieldsTable:   2,
		HashValuesTable:   1,
		SequencesTable:    3,
	}, counts)
}
