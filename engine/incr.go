package engine

import (
	"context"
	"strconv"

	"github.com/leftmike/rowdis/rowstore"
)

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// incrProgram increments the decimal value of an inline only key row, or
// creates the row with the value 1.
func incrProgram(f *family, ns uint64, key []byte) rowstore.Program {
	return rowstore.ProgramFunc(
		func(row []byte, found bool) ([]byte, int64, error) {
			kr := KeyRow{
				Namespace: ns,
				Key:       key,
			}
			var n int64
			if found {
				err := decodeKeyRow(row, &kr)
				if err != nil {
					return nil, 0, err
				}
				if kr.SurrogateID != 0 {
					return nil, 0, rowstore.ExitNOK(CodeMultiRowIncrement,
						"%s: value has %d extension rows", f.keys, kr.RowCount)
				}
				n, err = strconv.ParseInt(string(kr.Inline), 10, 64)
				if err != nil || n == int64(^uint64(0)>>1) {
					return nil, 0, rowstore.ExitNOK(CodeNotInteger,
						"%s: value is not an integer or out of range", f.keys)
				}
			}

			n += 1
			kr.Inline = []byte(itoa(n))
			kr.TotalLen = uint32(len(kr.Inline))
			kr.RowCount = 0
			kr.SurrogateID = 0
			newRow, err := kr.encode(f.inlineCap)
			if err != nil {
				return nil, 0, err
			}
			return newRow, n, nil
		})
}

// incr atomically adds one to the value of key in a single round trip.
func (e *Engine) incr(ctx context.Context, f *family, ns uint64, key []byte) (int64, error) {
	pk, err := e.keyRowKey(ns, key)
	if err != nil {
		return 0, err
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer e.close(tx)

	op, err := tx.Interpret(f.keys, pk, incrProgram(f, ns, key))
	if err != nil {
		return 0, stageError(err, "increment")
	}
	err = execute(ctx, tx, rowstore.ExecCommit, "increment")
	if err != nil {
		return 0, err
	}
	return op.Output(), nil
}
