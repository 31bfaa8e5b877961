// Package rowstore is a transactional row store layered over an ordered key
// value engine. Rows live in named tables and are addressed by primary key
// bytes. Transactions stage operations and execute them in round trips,
// either leaving the transaction open (ExecNoCommit) or committing it
// (ExecCommit); a failing operation aborts the whole transaction.
package rowstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/rowdis/kv"
)

const (
	dictionaryID = 0
	tableIDLen   = 4
)

type Store struct {
	kv     kv.KV
	sync   bool
	locks  RowLocks
	mutex  sync.Mutex
	tables map[string]*Table
	lastID uint32
	openTx int64
	closed int32
}

// Table identifies a table; it is valid for the lifetime of its Store.
type Table struct {
	name   string
	prefix []byte
}

func (tbl *Table) Name() string {
	return tbl.name
}

func (tbl *Table) String() string {
	return tbl.name
}

func (tbl *Table) rowKey(key []byte) []byte {
	buf := make([]byte, 0, len(tbl.prefix)+len(key))
	return append(append(buf, tbl.prefix...), key...)
}

func tablePrefix(id uint32) []byte {
	return binary.BigEndian.AppendUint32(make([]byte, 0, tableIDLen), id)
}

// Open loads the table dictionary from st. When sync is true, commits are
// synced to stable storage before returning.
func Open(st kv.KV, sync bool) (*Store, error) {
	rst := &Store{
		kv:     st,
		sync:   sync,
		tables: map[string]*Table{},
	}

	minKey := tablePrefix(dictionaryID)
	it, err := st.Iterate(minKey, kv.PrefixEnd(minKey))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for {
		err = it.Item(
			func(key, val []byte) error {
				if len(val) != tableIDLen {
					return fmt.Errorf("rowstore: dictionary entry %v: bad table id: %v", key, val)
				}
				id := binary.BigEndian.Uint32(val)
				if id > rst.lastID {
					rst.lastID = id
				}
				if len(key) == tableIDLen {
					// last table id assigned
					return nil
				}
				name := string(key[tableIDLen:])
				rst.tables[name] = &Table{
					name:   name,
					prefix: tablePrefix(id),
				}
				return nil
			})
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
	}

	log.WithField("tables", len(rst.tables)).Debug("rowstore: dictionary loaded")
	return rst, nil
}

// CreateTable returns the table called name, adding it to the dictionary if
// it does not already exist. Table ids are assigned from a counter kept in
// the dictionary, so Stores sharing a kv agree on names and ids.
func (st *Store) CreateTable(name string) (*Table, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if tbl, ok := st.tables[name]; ok {
		return tbl, nil
	} else if name == "" {
		return nil, newError(CodeNoSuchTable, SchemaError, "table name must not be empty")
	}

	upd, err := st.kv.Updater()
	if err != nil {
		return nil, err
	}
	key := append(tablePrefix(dictionaryID), name...)
	id, found, err := getID(upd, key)
	if err != nil {
		upd.Rollback()
		return nil, err
	}

	if found {
		upd.Rollback()
	} else {
		last, _, err := getID(upd, tablePrefix(dictionaryID))
		if err != nil {
			upd.Rollback()
			return nil, err
		}
		if st.lastID > last {
			last = st.lastID
		}
		id = last + 1

		err = upd.Set(key, tablePrefix(id))
		if err == nil {
			err = upd.Set(tablePrefix(dictionaryID), tablePrefix(id))
		}
		if err != nil {
			upd.Rollback()
			return nil, err
		}
		err = upd.Commit(true)
		if err != nil {
			return nil, err
		}
	}

	if id > st.lastID {
		st.lastID = id
	}
	tbl := &Table{
		name:   name,
		prefix: tablePrefix(id),
	}
	st.tables[name] = tbl

	log.WithFields(log.Fields{
		"table":   name,
		"id":      id,
		"created": !found,
	}).Info("rowstore: added table")
	return tbl, nil
}

func getID(upd kv.Updater, key []byte) (uint32, bool, error) {
	var id uint32
	err := upd.Get(key,
		func(val []byte) error {
			if len(val) != tableIDLen {
				return fmt.Errorf("rowstore: dictionary entry %v: bad table id: %v", key, val)
			}
			id = binary.BigEndian.Uint32(val)
			return nil
		})
	if err == io.EOF {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Table looks up name in the dictionary.
func (st *Store) Table(name string) (*Table, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	tbl, ok := st.tables[name]
	if !ok {
		return nil, newError(CodeNoSuchTable, SchemaError, "no such table: %s", name)
	}
	return tbl, nil
}

func (st *Store) Begin(ctx context.Context) (*Tx, error) {
	if atomic.LoadInt32(&st.closed) != 0 {
		return nil, newError(CodeStoreClosed, TemporaryResourceError, "store is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	atomic.AddInt64(&st.openTx, 1)
	return &Tx{
		st:     st,
		writes: map[string]*write{},
	}, nil
}

// OpenTransactions is the number of transactions begun but not yet closed.
func (st *Store) OpenTransactions() int64 {
	return atomic.LoadInt64(&st.openTx)
}

// Scan calls fn with the primary key and row of every committed row of tbl
// whose primary key starts with prefix, in primary key order.
func (st *Store) Scan(ctx context.Context, tbl *Table, prefix []byte,
	fn func(key, row []byte) error) error {

	minKey := tbl.rowKey(prefix)
	it, err := st.kv.Iterate(minKey, kv.PrefixEnd(minKey))
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = it.Item(
			func(key, val []byte) error {
				return fn(key[len(tbl.prefix):], val)
			})
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}

func (st *Store) Close() error {
	if !atomic.CompareAndSwapInt32(&st.closed, 0, 1) {
		return nil
	}
	return st.kv.Close()
}
