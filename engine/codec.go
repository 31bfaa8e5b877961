package engine

import (
	"encoding/binary"
	"fmt"
)

const (
	// MaxFieldLen is the largest value a 2 byte length prefix can describe.
	MaxFieldLen = 65535

	lengthPrefixLen = 2
	surrogateLen    = 8
	ordinalLen      = 4
	namespaceLen    = 8
	keyRowHeaderLen = surrogateLen + 4*4
)

// EncodeLengthPrefixed appends a 2 byte little endian length followed by b
// to dst. It fails if b is longer than capacity or MaxFieldLen.
func EncodeLengthPrefixed(dst, b []byte, capacity int) ([]byte, error) {
	if len(b) > MaxFieldLen {
		return nil, fmt.Errorf("engine: field of %d bytes exceeds %d bytes", len(b), MaxFieldLen)
	} else if len(b) > capacity {
		return nil, fmt.Errorf("engine: field of %d bytes exceeds capacity of %d bytes", len(b),
			capacity)
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(b)))
	return append(dst, b...), nil
}

// DecodeLengthPrefixed returns the length and bytes of the length prefixed
// field at the start of src, and the rest of src. The bytes are a view of src.
func DecodeLengthPrefixed(src []byte) (int, []byte, []byte, error) {
	if len(src) < lengthPrefixLen {
		return 0, nil, nil, fmt.Errorf("engine: field too short: %d bytes", len(src))
	}
	n := int(binary.LittleEndian.Uint16(src))
	src = src[lengthPrefixLen:]
	if len(src) < n {
		return 0, nil, nil, fmt.Errorf("engine: field length %d exceeds %d remaining bytes", n,
			len(src))
	}
	return n, src[:n], src[n:], nil
}

// KeyRow is the primary record for a key or a hash field. A zero SurrogateID
// is null: the value has no extension rows.
type KeyRow struct {
	Namespace   uint64
	Key         []byte
	SurrogateID uint64
	Expiry      uint32
	ValueType   uint32
	TotalLen    uint32
	RowCount    uint32
	Inline      []byte
}

func (kr *KeyRow) String() string {
	return fmt.Sprintf("%d:%q sid=%d total=%d rows=%d inline=%d", kr.Namespace, kr.Key,
		kr.SurrogateID, kr.TotalLen, kr.RowCount, len(kr.Inline))
}

func encodeKeyRowKey(ns uint64, key []byte, maxKey int) ([]byte, error) {
	buf := binary.BigEndian.AppendUint64(make([]byte, 0, namespaceLen+lengthPrefixLen+len(key)),
		ns)
	return EncodeLengthPrefixed(buf, key, maxKey)
}

func (kr *KeyRow) encode(inlineCap int) ([]byte, error) {
	buf := make([]byte, 0, keyRowHeaderLen+lengthPrefixLen+len(kr.Inline))
	buf = binary.LittleEndian.AppendUint64(buf, kr.SurrogateID)
	buf = binary.LittleEndian.AppendUint32(buf, kr.Expiry)
	buf = binary.LittleEndian.AppendUint32(buf, kr.ValueType)
	buf = binary.LittleEndian.AppendUint32(buf, kr.TotalLen)
	buf = binary.LittleEndian.AppendUint32(buf, kr.RowCount)
	return EncodeLengthPrefixed(buf, kr.Inline, inlineCap)
}

func decodeKeyRow(row []byte, kr *KeyRow) error {
	if len(row) < keyRowHeaderLen {
		return fmt.Errorf("engine: key row too short: %d bytes", len(row))
	}
	kr.SurrogateID = binary.LittleEndian.Uint64(row)
	kr.Expiry = binary.LittleEndian.Uint32(row[8:])
	kr.ValueType = binary.LittleEndian.Uint32(row[12:])
	kr.TotalLen = binary.LittleEndian.Uint32(row[16:])
	kr.RowCount = binary.LittleEndian.Uint32(row[20:])
	_, inline, rest, err := DecodeLengthPrefixed(row[keyRowHeaderLen:])
	if err != nil {
		return err
	} else if len(rest) != 0 {
		return fmt.Errorf("engine: key row has %d trailing bytes", len(rest))
	}
	kr.Inline = inline

	if (kr.RowCount == 0) != (kr.SurrogateID == 0) {
		return fmt.Errorf("engine: key row: surrogate id %d with %d rows", kr.SurrogateID,
			kr.RowCount)
	}
	return nil
}

func encodeExtRowKey(sid uint64, ordinal uint32) []byte {
	buf := make([]byte, 0, surrogateLen+ordinalLen)
	buf = binary.BigEndian.AppendUint64(buf, sid)
	return binary.BigEndian.AppendUint32(buf, ordinal)
}

func encodeExtRow(chunk []byte, extCap int) ([]byte, error) {
	return EncodeLengthPrefixed(make([]byte, 0, lengthPrefixLen+len(chunk)), chunk, extCap)
}

func decodeExtRow(row []byte) ([]byte, error) {
	_, chunk, rest, err := DecodeLengthPrefixed(row)
	if err != nil {
		return nil, err
	} else if len(rest) != 0 {
		return nil, fmt.Errorf("engine: extension row has %d trailing bytes", len(rest))
	}
	return chunk, nil
}

func encodeCounter(n uint64) []byte {
	return binary.LittleEndian.AppendUint64(make([]byte, 0, 8), n)
}

func decodeCounter(row []byte) (uint64, error) {
	if len(row) != 8 {
		return 0, fmt.Errorf("engine: counter row of %d bytes", len(row))
	}
	return binary.LittleEndian.Uint64(row), nil
}

// RowCount is the number of extension rows needed for a value of length
// total.
func RowCount(total, inlineCap, extCap int) int {
	if total <= inlineCap {
		return 0
	}
	return (total - inlineCap + extCap - 1) / extCap
}

// splitValue returns the inline part of value and its extension chunks.
func splitValue(value []byte, inlineCap, extCap int) ([]byte, [][]byte) {
	if len(value) <= inlineCap {
		return value, nil
	}
	inline := value[:inlineCap]
	tail := value[inlineCap:]
	chunks := make([][]byte, 0, RowCount(len(value), inlineCap, extCap))
	for len(tail) > 0 {
		n := extCap
		if n > len(tail) {
			n = len(tail)
		}
		chunks = append(chunks, tail[:n])
		tail = tail[n:]
	}
	return inline, chunks
}
