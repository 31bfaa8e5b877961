// Package engine maps string and hash values of any length onto the fixed
// capacity rows of a rowstore. A value is kept in a key row holding an
// inline prefix, with the remaining bytes split across extension rows linked
// to the key row by a surrogate id.
package engine

import (
	"context"
	"math"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/rowdis/rowstore"
)

const (
	StringKeysTable   = "string_keys"
	StringValuesTable = "string_values"
	HashKeysTable     = "hset_keys"
	HashFieldsTable   = "hset_fields"
	HashValuesTable   = "hset_values"
	SequencesTable    = "sequences"
)

type Config struct {
	MaxKeyLen           int
	MaxValueLen         int
	StringInline        int
	HashInline          int
	ExtensionCapacity   int
	WriteBatch          int
	ReadBatch           int
	Window              int
	MaxOutstandingBytes int64
	Prefetch            int
	// FaultFatal exits the process when the pipeline detects a transaction
	// leak; otherwise the request fails with InternalConsistencyFault.
	FaultFatal bool
}

func DefaultConfig() Config {
	return Config{
		MaxKeyLen:           3000,
		MaxValueLen:         64 * 1024 * 1024,
		StringInline:        4096,
		HashInline:          26500,
		ExtensionCapacity:   29500,
		WriteBatch:          4,
		ReadBatch:           2,
		Window:              100,
		MaxOutstandingBytes: 4 * 1024 * 1024,
		Prefetch:            1024,
		FaultFatal:          true,
	}
}

// validate checks that the batch and window sizes are positive and that
// every capacity fits the row encoding.
func (cfg Config) validate() error {
	for _, v := range []struct {
		name string
		val  int
	}{
		{"write batch", cfg.WriteBatch},
		{"read batch", cfg.ReadBatch},
		{"window", cfg.Window},
		{"prefetch", cfg.Prefetch},
	} {
		if v.val < 1 {
			return validationError("config: %s must be at least 1: %d", v.name, v.val)
		}
	}

	for _, v := range []struct {
		name string
		val  int
	}{
		{"max key length", cfg.MaxKeyLen},
		{"string inline capacity", cfg.StringInline},
		{"hash inline capacity", cfg.HashInline},
		{"extension capacity", cfg.ExtensionCapacity},
	} {
		if v.val < 1 || v.val > MaxFieldLen {
			return validationError("config: %s must be between 1 and %d: %d", v.name,
				MaxFieldLen, v.val)
		}
	}

	if cfg.MaxValueLen < 0 || int64(cfg.MaxValueLen) > math.MaxUint32 {
		return validationError("config: max value length must be between 0 and %d: %d",
			uint64(math.MaxUint32), cfg.MaxValueLen)
	}
	if cfg.MaxOutstandingBytes < 0 {
		return validationError("config: max outstanding bytes must not be negative: %d",
			cfg.MaxOutstandingBytes)
	}
	return nil
}

// family is a pair of key row and extension row tables.
type family struct {
	name      string
	keys      *rowstore.Table
	values    *rowstore.Table
	inlineCap int
	alloc     *Allocator
}

type Engine struct {
	st     *rowstore.Store
	cfg    Config
	strs   *family
	hashes *family
	ns     *namespaces
	seqs   *rowstore.Table
	opened int64
	closed int64
}

// Open checks cfg, then provisions the tables used by the engine, creating
// any which are missing.
func Open(st *rowstore.Store, cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	tables := map[string]*rowstore.Table{}
	for _, name := range []string{StringKeysTable, StringValuesTable, HashKeysTable,
		HashFieldsTable, HashValuesTable, SequencesTable} {

		tbl, err := st.CreateTable(name)
		if err != nil {
			return nil, backendError(BackendUnavailable, "failed to get table "+name, err)
		}
		tables[name] = tbl
	}

	e := &Engine{
		st:   st,
		cfg:  cfg,
		seqs: tables[SequencesTable],
	}
	e.strs = &family{
		name:      "string",
		keys:      tables[StringKeysTable],
		values:    tables[StringValuesTable],
		inlineCap: cfg.StringInline,
		alloc:     e.newAllocator(StringKeysTable),
	}
	e.hashes = &family{
		name:      "hash",
		keys:      tables[HashFieldsTable],
		values:    tables[HashValuesTable],
		inlineCap: cfg.HashInline,
		alloc:     e.newAllocator(HashFieldsTable),
	}
	e.ns = &namespaces{
		e:     e,
		tbl:   tables[HashKeysTable],
		alloc: e.newAllocator(HashKeysTable),
	}

	log.WithFields(log.Fields{
		"window":      cfg.Window,
		"outstanding": cfg.MaxOutstandingBytes,
	}).Info("engine: opened")
	return e, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Store returns the row store the engine is layered over.
func (e *Engine) Store() *rowstore.Store {
	return e.st
}

func (e *Engine) begin(ctx context.Context) (*rowstore.Tx, error) {
	tx, err := e.st.Begin(ctx)
	if err != nil {
		return nil, backendError(TransactionError, "failed to start transaction", err)
	}
	atomic.AddInt64(&e.opened, 1)
	transactionsOpen.Inc()
	return tx, nil
}

func (e *Engine) close(tx *rowstore.Tx) {
	tx.Close()
	atomic.AddInt64(&e.closed, 1)
	transactionsOpen.Dec()
}

// OpenTransactions is the number of transactions begun by the engine and not
// yet closed.
func (e *Engine) OpenTransactions() int64 {
	return atomic.LoadInt64(&e.opened) - atomic.LoadInt64(&e.closed)
}

func execute(ctx context.Context, tx *rowstore.Tx, et rowstore.ExecType, what string) error {
	err := tx.Execute(ctx, et)
	if err != nil {
		return backendError(ExecutionError, "failed to "+what, err)
	}
	return nil
}

func stageError(err error, what string) error {
	return backendError(OperationDefineError, "failed to define "+what, err)
}

// TableRows returns the number of committed rows in each table used by the
// engine.
func (e *Engine) TableRows(ctx context.Context) (map[string]int64, error) {
	counts := map[string]int64{}
	for _, tbl := range []*rowstore.Table{e.strs.keys, e.strs.values, e.ns.tbl, e.hashes.keys,
		e.hashes.values, e.seqs} {

		var n int64
		err := e.st.Scan(ctx, tbl, nil,
			func(key, row []byte) error {
				n += 1
				return nil
			})
		if err != nil {
			return nil, backendError(ExecutionError, "failed to scan table "+tbl.Name(), err)
		}
		counts[tbl.Name()] = n
	}
	return counts, nil
}
