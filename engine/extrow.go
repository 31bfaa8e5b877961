package engine

import (
	"context"

	"github.com/leftmike/rowdis/rowstore"
)

// writeRows stages the extension rows of sid in sub-batches, executing each
// without committing; the last sub-batch commits the transaction.
func (e *Engine) writeRows(ctx context.Context, tx *rowstore.Tx, f *family, sid uint64,
	chunks [][]byte) error {

	for start := 0; start < len(chunks); start += e.cfg.WriteBatch {
		end := start + e.cfg.WriteBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		for ord := start; ord < end; ord += 1 {
			row, err := encodeExtRow(chunks[ord], e.cfg.ExtensionCapacity)
			if err != nil {
				return validationError("%s", err)
			}
			_, err = tx.Write(f.values, encodeExtRowKey(sid, uint32(ord)), row)
			if err != nil {
				return stageError(err, "extension row write")
			}
		}

		et := rowstore.ExecNoCommit
		if end == len(chunks) {
			et = rowstore.ExecCommit
		}
		err := execute(ctx, tx, et, "write extension rows")
		if err != nil {
			return err
		}
	}
	return nil
}

// readRows reads ordinals [0, rowCount) of sid in batches, appending the
// chunks to buf in ordinal order; the last batch commits the transaction.
func (e *Engine) readRows(ctx context.Context, tx *rowstore.Tx, f *family, sid uint64,
	rowCount uint32, buf []byte) ([]byte, error) {

	batch := uint32(e.cfg.ReadBatch)
	for start := uint32(0); start < rowCount; start += batch {
		end := start + batch
		if end > rowCount {
			end = rowCount
		}
		ops, err := stageExtReads(tx, f, sid, start, end)
		if err != nil {
			return nil, err
		}

		et := rowstore.ExecNoCommit
		if end == rowCount {
			et = rowstore.ExecCommit
		}
		err = execute(ctx, tx, et, "read extension rows")
		if err != nil {
			return nil, err
		}
		buf, err = appendChunks(buf, ops, sid, start)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func stageExtReads(tx *rowstore.Tx, f *family, sid uint64, start,
	end uint32) ([]*rowstore.Operation, error) {

	ops := make([]*rowstore.Operation, 0, end-start)
	for ord := start; ord < end; ord += 1 {
		op, err := tx.Read(f.values, encodeExtRowKey(sid, ord), rowstore.LockCommitted)
		if err != nil {
			return nil, stageError(err, "extension row read")
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func appendChunks(buf []byte, ops []*rowstore.Operation, sid uint64,
	start uint32) ([]byte, error) {

	for i, op := range ops {
		if !op.Found() {
			return nil, &Error{
				Kind:    ExecutionError,
				Code:    rowstore.CodeNoDataFound,
				Message: "failed to read extension rows",
				Err: rowstore.NoData("extension row %d:%d did not exist", sid,
					start+uint32(i)),
			}
		}
		chunk, err := decodeExtRow(op.Row())
		if err != nil {
			return nil, &Error{Kind: ExecutionError, Message: err.Error(), Err: err}
		}
		buf = append(buf, chunk...)
	}
	return buf, nil
}

// deleteRange stages the deletion of ordinals [start, end) of sid and
// executes it without committing.
func (e *Engine) deleteRange(ctx context.Context, tx *rowstore.Tx, f *family, sid uint64,
	start, end uint32) error {

	for ord := start; ord < end; ord += 1 {
		_, err := tx.Delete(f.values, encodeExtRowKey(sid, ord))
		if err != nil {
			return stageError(err, "extension row delete")
		}
		if (ord-start+1)%uint32(e.cfg.WriteBatch) == 0 || ord+1 == end {
			err = execute(ctx, tx, rowstore.ExecNoCommit, "delete extension rows")
			if err != nil {
				return err
			}
		}
	}
	return nil
}
