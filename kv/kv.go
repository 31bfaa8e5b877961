package kv

import (
	"bytes"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Iterator walks keys in ascending order. Item returns io.EOF once the
// iterator is exhausted or has passed its upper bound.
type Iterator interface {
	Item(fn func(key, val []byte) error) error
	Close()
}

// Updater is a single atomic batch of changes; Get sees the changes already
// made through the updater.
type Updater interface {
	Get(key []byte, fn func(val []byte) error) error
	Set(key, val []byte) error
	Delete(key []byte) error
	Commit(sync bool) error
	Rollback()
}

// KV is an ordered key value engine. Get returns io.EOF if the key is not
// found. Iterate covers [minKey, maxKey); a nil maxKey is unbounded.
type KV interface {
	Iterate(minKey, maxKey []byte) (Iterator, error)
	Get(key []byte, fn func(val []byte) error) error
	Updater() (Updater, error)
	Close() error
}

var Engines = []string{"memory", "badger", "bbolt", "pebble"}

func Open(engine, dataDir string, logger *log.Logger) (KV, error) {
	switch engine {
	case "memory":
		return MakeBTreeKV()
	case "badger":
		return MakeBadgerKV(dataDir, logger)
	case "bbolt":
		return MakeBBoltKV(dataDir)
	case "pebble":
		return MakePebbleKV(dataDir, logger)
	}
	return nil, fmt.Errorf("kv: got %s for engine; want memory, badger, bbolt, or pebble", engine)
}

// PrefixEnd returns the smallest key greater than every key with prefix, or
// nil if there is no such key.
func PrefixEnd(prefix []byte) []byte {
	end := append(make([]byte, 0, len(prefix)), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i] += 1
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func pastMax(maxKey, key []byte) bool {
	return maxKey != nil && bytes.Compare(key, maxKey) >= 0
}
