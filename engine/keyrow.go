package engine

import (
	"context"
	"time"

	retry "github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/rowdis/rowstore"
)

func (e *Engine) keyRowKey(ns uint64, key []byte) ([]byte, error) {
	if len(key) > e.cfg.MaxKeyLen {
		return nil, validationError("key of %d bytes exceeds maximum of %d bytes", len(key),
			e.cfg.MaxKeyLen)
	}
	pk, err := encodeKeyRowKey(ns, key, e.cfg.MaxKeyLen)
	if err != nil {
		return nil, validationError("%s", err)
	}
	return pk, nil
}

func decodeOperation(op *rowstore.Operation) (*KeyRow, error) {
	var kr KeyRow
	err := decodeKeyRow(op.Row(), &kr)
	if err != nil {
		return nil, &Error{Kind: ExecutionError, Message: err.Error(), Err: err}
	}
	return &kr, nil
}

// writeProgram returns a program which replaces the key row with kr, unless
// the existing row still references extension rows; the output is 1 if the
// row did not already exist.
func writeProgram(f *family, kr *KeyRow) (rowstore.Program, error) {
	row, err := kr.encode(f.inlineCap)
	if err != nil {
		return nil, validationError("%s", err)
	}

	return rowstore.ProgramFunc(
		func(old []byte, found bool) ([]byte, int64, error) {
			if !found {
				return row, 1, nil
			}
			var okr KeyRow
			if err := decodeKeyRow(old, &okr); err != nil {
				return nil, 0, err
			}
			if okr.SurrogateID != 0 {
				return nil, 0, rowstore.ExitNOK(rowstore.CodeForeignKeyRestrict,
					"%s: row is referenced by %d rows of %s", f.keys, okr.RowCount, f.values)
			}
			return row, 0, nil
		}), nil
}

// set stores value for key, returning true if the key row was created. A
// write rejected because the old value still has extension rows is retried
// once as a delete then insert.
func (e *Engine) set(ctx context.Context, f *family, ns uint64, key,
	value []byte) (bool, error) {

	pk, err := e.keyRowKey(ns, key)
	if err != nil {
		return false, err
	}
	if len(value) > e.cfg.MaxValueLen {
		return false, validationError("value of %d bytes exceeds maximum of %d bytes",
			len(value), e.cfg.MaxValueLen)
	}

	inline, chunks := splitValue(value, f.inlineCap, e.cfg.ExtensionCapacity)
	kr := &KeyRow{
		Namespace: ns,
		Key:       key,
		TotalLen:  uint32(len(value)),
		RowCount:  uint32(len(chunks)),
		Inline:    inline,
	}
	if len(chunks) > 0 {
		kr.SurrogateID, err = f.alloc.Allocate(ctx)
		if err != nil {
			return false, err
		}
	}

	var created bool
	var cascade bool
	b := retry.WithMaxRetries(1, retry.NewConstant(time.Millisecond))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		if cascade {
			return e.overwriteWithCascade(ctx, f, pk, kr, chunks)
		}

		var err error
		created, err = e.write(ctx, f, pk, kr, chunks)
		if IsKind(err, ConflictError) {
			cascade = true
			conflictCounter.WithLabelValues(f.name).Inc()
			log.WithFields(log.Fields{
				"family": f.name,
				"key":    kr,
			}).Debug("engine: overwriting value with extension rows")
			return retry.RetryableError(err)
		}
		return err
	})
	return created, err
}

// write stages the key row; it commits immediately when there are no
// extension rows, otherwise the extension rows join the transaction.
func (e *Engine) write(ctx context.Context, f *family, pk []byte, kr *KeyRow,
	chunks [][]byte) (bool, error) {

	prog, err := writeProgram(f, kr)
	if err != nil {
		return false, err
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return false, err
	}
	defer e.close(tx)

	op, err := tx.Interpret(f.keys, pk, prog)
	if err != nil {
		return false, stageError(err, "key row write")
	}
	if len(chunks) == 0 {
		err = execute(ctx, tx, rowstore.ExecCommit, "write key row")
		if err != nil {
			return false, err
		}
	} else {
		err = execute(ctx, tx, rowstore.ExecNoCommit, "write key row")
		if err != nil {
			return false, err
		}
		err = e.writeRows(ctx, tx, f, kr.SurrogateID, chunks)
		if err != nil {
			return false, err
		}
	}
	return op.Output() == 1, nil
}

// overwriteWithCascade deletes the key row and all of its extension rows,
// then inserts kr, in one transaction.
func (e *Engine) overwriteWithCascade(ctx context.Context, f *family, pk []byte, kr *KeyRow,
	chunks [][]byte) error {

	row, err := kr.encode(f.inlineCap)
	if err != nil {
		return validationError("%s", err)
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer e.close(tx)

	_, err = e.deleteLocked(ctx, tx, f, pk)
	if err != nil {
		return err
	}
	_, err = tx.Insert(f.keys, pk, row)
	if err != nil {
		return stageError(err, "key row insert")
	}
	if len(chunks) == 0 {
		return execute(ctx, tx, rowstore.ExecCommit, "insert key row")
	}
	err = execute(ctx, tx, rowstore.ExecNoCommit, "insert key row")
	if err != nil {
		return err
	}
	return e.writeRows(ctx, tx, f, kr.SurrogateID, chunks)
}

// deleteLocked locks the key row exclusively and deletes it along with its
// extension rows, without committing.
func (e *Engine) deleteLocked(ctx context.Context, tx *rowstore.Tx, f *family,
	pk []byte) (bool, error) {

	op, err := tx.Read(f.keys, pk, rowstore.LockExclusive)
	if err != nil {
		return false, stageError(err, "key row read")
	}
	err = execute(ctx, tx, rowstore.ExecNoCommit, "lock key row")
	if err != nil {
		return false, err
	}
	if !op.Found() {
		return false, nil
	}

	kr, err := decodeOperation(op)
	if err != nil {
		return false, err
	}
	if kr.SurrogateID != 0 {
		err = e.deleteRange(ctx, tx, f, kr.SurrogateID, 0, kr.RowCount)
		if err != nil {
			return false, err
		}
	}
	_, err = tx.Delete(f.keys, pk)
	if err != nil {
		return false, stageError(err, "key row delete")
	}
	return true, nil
}

// del deletes key and its extension rows; it returns false if there was no
// such key.
func (e *Engine) del(ctx context.Context, f *family, ns uint64, key []byte) (bool, error) {
	pk, err := e.keyRowKey(ns, key)
	if err != nil {
		return false, err
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return false, err
	}
	defer e.close(tx)

	found, err := e.deleteLocked(ctx, tx, f, pk)
	if err != nil {
		return false, err
	}
	err = execute(ctx, tx, rowstore.ExecCommit, "delete key row")
	if err != nil {
		return false, err
	}
	return found, nil
}

// readSimple reads the committed key row without locking it.
func (e *Engine) readSimple(ctx context.Context, f *family, pk []byte) (*KeyRow, bool, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer e.close(tx)

	op, err := tx.Read(f.keys, pk, rowstore.LockCommitted)
	if err != nil {
		return nil, false, stageError(err, "key row read")
	}
	err = execute(ctx, tx, rowstore.ExecCommit, "read key row")
	if err != nil {
		return nil, false, err
	}
	if !op.Found() {
		return nil, false, nil
	}
	kr, err := decodeOperation(op)
	if err != nil {
		return nil, false, err
	}
	return kr, true, nil
}

// readLocked reads the key row holding a shared lock on it, so the extension
// rows can not be changed until tx commits.
func (e *Engine) readLocked(ctx context.Context, tx *rowstore.Tx, f *family,
	pk []byte) (*KeyRow, bool, error) {

	op, err := tx.Read(f.keys, pk, rowstore.LockShared)
	if err != nil {
		return nil, false, stageError(err, "key row read")
	}
	err = execute(ctx, tx, rowstore.ExecNoCommit, "read key row")
	if err != nil {
		return nil, false, err
	}
	if !op.Found() {
		return nil, false, nil
	}
	kr, err := decodeOperation(op)
	if err != nil {
		return nil, false, err
	}
	return kr, true, nil
}

func valueOf(kr *KeyRow) []byte {
	return append(make([]byte, 0, kr.TotalLen), kr.Inline...)
}

func checkLength(kr *KeyRow, val []byte) error {
	if len(val) != int(kr.TotalLen) {
		return &Error{
			Kind: ExecutionError,
			Message: "value length mismatch: " + kr.String() + ": got " +
				itoa(int64(len(val))),
		}
	}
	return nil
}

// get returns the value of key; the value is nil and false if there is no
// such key.
func (e *Engine) get(ctx context.Context, f *family, ns uint64, key []byte) ([]byte, bool,
	error) {

	pk, err := e.keyRowKey(ns, key)
	if err != nil {
		return nil, false, err
	}

	kr, found, err := e.readSimple(ctx, f, pk)
	if err != nil || !found {
		return nil, false, err
	}
	if kr.RowCount == 0 {
		return valueOf(kr), true, nil
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer e.close(tx)

	kr, found, err = e.readLocked(ctx, tx, f, pk)
	if err != nil {
		return nil, false, err
	}
	if !found || kr.RowCount == 0 {
		err = execute(ctx, tx, rowstore.ExecCommit, "read key row")
		if err != nil || !found {
			return nil, false, err
		}
		return valueOf(kr), true, nil
	}

	val, err := e.readRows(ctx, tx, f, kr.SurrogateID, kr.RowCount, valueOf(kr))
	if err != nil {
		return nil, false, err
	}
	if err := checkLength(kr, val); err != nil {
		return nil, false, err
	}
	return val, true, nil
}
