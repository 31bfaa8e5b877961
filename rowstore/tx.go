package rowstore

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
)

type ExecType int

const (
	ExecNoCommit ExecType = iota
	ExecCommit
)

func (et ExecType) String() string {
	if et == ExecCommit {
		return "commit"
	}
	return "no-commit"
}

type LockMode int

const (
	// LockCommitted reads the latest committed row without taking a lock.
	LockCommitted LockMode = iota
	LockShared
	LockExclusive
)

// Program is a conditional read-modify-write evaluated by the store as a
// single step while holding an exclusive lock on the row. Run is passed the
// current row (found is false if there is none); it returns the new row, or
// nil to leave the row as it is, and an output value. An error aborts the
// transaction.
type Program interface {
	Run(row []byte, found bool) ([]byte, int64, error)
}

type ProgramFunc func(row []byte, found bool) ([]byte, int64, error)

func (pf ProgramFunc) Run(row []byte, found bool) ([]byte, int64, error) {
	return pf(row, found)
}

type opKind int

const (
	readOp opKind = iota
	insertOp
	writeOp
	deleteOp
	interpretOp
)

// Operation is a staged operation; its results are valid once the Execute
// that ran it has returned.
type Operation struct {
	kind opKind
	tbl  *Table
	key  []byte
	row  []byte
	lm   LockMode
	prog Program

	done   bool
	found  bool
	output int64
	err    error
}

func (op *Operation) Row() []byte {
	return op.row
}

func (op *Operation) Found() bool {
	return op.found
}

func (op *Operation) Output() int64 {
	return op.output
}

func (op *Operation) Err() error {
	return op.err
}

type txState int

const (
	txActive txState = iota
	txCommitted
	txAborted
)

type write struct {
	key []byte
	row []byte // nil to delete
}

type Tx struct {
	st      *Store
	lkr     Locker
	state   txState
	closed  bool
	pending []*Operation
	writes  map[string]*write
	order   []string
}

func (tx *Tx) stage(op *Operation) (*Operation, error) {
	if tx.closed || tx.state != txActive {
		return nil, newError(CodeTxAborted, InternalError,
			"unable to define operation on %s transaction", tx.stateName())
	}
	tx.pending = append(tx.pending, op)
	return op, nil
}

func (tx *Tx) stateName() string {
	if tx.closed {
		return "closed"
	}
	switch tx.state {
	case txCommitted:
		return "committed"
	case txAborted:
		return "aborted"
	}
	return "active"
}

func (tx *Tx) Read(tbl *Table, key []byte, lm LockMode) (*Operation, error) {
	return tx.stage(&Operation{kind: readOp, tbl: tbl, key: key, lm: lm})
}

// Insert fails with CodeDuplicateKey if the row already exists.
func (tx *Tx) Insert(tbl *Table, key, row []byte) (*Operation, error) {
	return tx.stage(&Operation{kind: insertOp, tbl: tbl, key: key, row: row})
}

// Write inserts or overwrites the row.
func (tx *Tx) Write(tbl *Table, key, row []byte) (*Operation, error) {
	return tx.stage(&Operation{kind: writeOp, tbl: tbl, key: key, row: row})
}

// Delete fails with CodeNoDataFound if there is no such row.
func (tx *Tx) Delete(tbl *Table, key []byte) (*Operation, error) {
	return tx.stage(&Operation{kind: deleteOp, tbl: tbl, key: key})
}

func (tx *Tx) Interpret(tbl *Table, key []byte, prog Program) (*Operation, error) {
	return tx.stage(&Operation{kind: interpretOp, tbl: tbl, key: key, prog: prog})
}

// Execute runs the staged operations in order. The first failing operation
// aborts the transaction and its error is returned. With ExecCommit, the
// changes made by the transaction are committed atomically.
func (tx *Tx) Execute(ctx context.Context, et ExecType) error {
	if tx.closed || tx.state != txActive {
		return newError(CodeTxAborted, InternalError, "unable to execute %s transaction",
			tx.stateName())
	}
	if err := ctx.Err(); err != nil {
		tx.abort()
		return err
	}

	ops := tx.pending
	tx.pending = nil
	for _, op := range ops {
		err := tx.run(op)
		op.done = true
		if err != nil {
			op.err = err
			tx.abort()
			return err
		}
	}

	if et == ExecCommit {
		return tx.commit()
	}
	return nil
}

func (tx *Tx) get(key []byte) ([]byte, bool, error) {
	if w, ok := tx.writes[string(key)]; ok {
		return w.row, w.row != nil, nil
	}

	var row []byte
	err := tx.st.kv.Get(key,
		func(val []byte) error {
			row = append(make([]byte, 0, len(val)), val...)
			return nil
		})
	if err == io.EOF {
		return nil, false, nil
	} else if err != nil {
		return nil, false, newError(CodeKVFailure, InternalError, "get: %s", err)
	}
	return row, true, nil
}

func (tx *Tx) set(key, row []byte) {
	skey := string(key)
	if w, ok := tx.writes[skey]; ok {
		w.row = row
		return
	}
	tx.writes[skey] = &write{key: key, row: row}
	tx.order = append(tx.order, skey)
}

func (tx *Tx) writeLock(tbl *Table, key []byte) error {
	if !tx.st.locks.WLock(&tx.lkr, key) {
		return newError(CodeLockConflict, TemporaryResourceError,
			"%s: unable to upgrade to exclusive lock", tbl)
	}
	return nil
}

func (tx *Tx) run(op *Operation) error {
	key := op.tbl.rowKey(op.key)

	switch op.kind {
	case readOp:
		switch op.lm {
		case LockShared:
			tx.st.locks.RLock(&tx.lkr, key)
		case LockExclusive:
			if err := tx.writeLock(op.tbl, key); err != nil {
				return err
			}
		}
		row, found, err := tx.get(key)
		if err != nil {
			return err
		}
		op.row = row
		op.found = found

	case insertOp:
		if err := tx.writeLock(op.tbl, key); err != nil {
			return err
		}
		_, found, err := tx.get(key)
		if err != nil {
			return err
		} else if found {
			return newError(CodeDuplicateKey, ConstraintViolation, "%s: tuple already existed",
				op.tbl)
		}
		tx.set(key, op.row)

	case writeOp:
		if err := tx.writeLock(op.tbl, key); err != nil {
			return err
		}
		tx.set(key, op.row)

	case deleteOp:
		if err := tx.writeLock(op.tbl, key); err != nil {
			return err
		}
		_, found, err := tx.get(key)
		if err != nil {
			return err
		} else if !found {
			return newError(CodeNoDataFound, NoDataFound, "%s: tuple did not exist", op.tbl)
		}
		tx.set(key, nil)

	case interpretOp:
		if err := tx.writeLock(op.tbl, key); err != nil {
			return err
		}
		row, found, err := tx.get(key)
		if err != nil {
			return err
		}
		newRow, output, err := op.prog.Run(row, found)
		if err != nil {
			return err
		}
		if newRow != nil {
			tx.set(key, newRow)
		}
		op.found = found
		op.output = output

	default:
		panic(fmt.Sprintf("rowstore: unexpected operation: %d", op.kind))
	}

	return nil
}

func (tx *Tx) commit() error {
	defer tx.st.locks.Unlock(&tx.lkr)

	if len(tx.order) > 0 {
		upd, err := tx.st.kv.Updater()
		if err != nil {
			tx.discard(txAborted)
			return newError(CodeKVFailure, InternalError, "updater: %s", err)
		}
		for _, skey := range tx.order {
			w := tx.writes[skey]
			if w.row == nil {
				err = upd.Delete(w.key)
			} else {
				err = upd.Set(w.key, w.row)
			}
			if err != nil {
				upd.Rollback()
				tx.discard(txAborted)
				return newError(CodeKVFailure, InternalError, "update: %s", err)
			}
		}
		err = upd.Commit(tx.st.sync)
		if err != nil {
			tx.discard(txAborted)
			return newError(CodeKVFailure, InternalError, "commit: %s", err)
		}
	}

	tx.discard(txCommitted)
	return nil
}

func (tx *Tx) discard(state txState) {
	tx.state = state
	tx.pending = nil
	tx.writes = nil
	tx.order = nil
}

func (tx *Tx) abort() {
	tx.discard(txAborted)
	tx.st.locks.Unlock(&tx.lkr)
}

// Close rolls back the transaction if it is still active and releases it.
// Close must be called exactly once per transaction; later calls do nothing.
func (tx *Tx) Close() {
	if tx.closed {
		return
	}
	if tx.state == txActive {
		tx.abort()
	}
	tx.closed = true
	atomic.AddInt64(&tx.st.openTx, -1)
}

func (tx *Tx) Committed() bool {
	return tx.state == txCommitted
}
