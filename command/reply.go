package command

import (
	"strconv"
)

// Reply encoding for the Redis serialization protocol.

func AppendBulk(dst, b []byte) []byte {
	dst = append(dst, '$')
	dst = strconv.AppendInt(dst, int64(len(b)), 10)
	dst = append(dst, '\r', '\n')
	dst = append(dst, b...)
	return append(dst, '\r', '\n')
}

func AppendNull(dst []byte) []byte {
	return append(dst, "$-1\r\n"...)
}

// AppendValue appends b as a bulk string, or a null if b is nil.
func AppendValue(dst, b []byte) []byte {
	if b == nil {
		return AppendNull(dst)
	}
	return AppendBulk(dst, b)
}

func AppendSimple(dst []byte, s string) []byte {
	dst = append(dst, '+')
	dst = append(dst, s...)
	return append(dst, '\r', '\n')
}

func AppendOK(dst []byte) []byte {
	return append(dst, "+OK\r\n"...)
}

func AppendInteger(dst []byte, n int64) []byte {
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, '\r', '\n')
}

func AppendArray(dst []byte, n int) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(n), 10)
	return append(dst, '\r', '\n')
}

// AppendError appends an error reply; CR and LF in msg are replaced by
// spaces.
func AppendError(dst []byte, msg string) []byte {
	dst = append(dst, '-')
	for i := 0; i < len(msg); i++ {
		if msg[i] == '\r' || msg[i] == '\n' {
			dst = append(dst, ' ')
		} else {
			dst = append(dst, msg[i])
		}
	}
	return append(dst, '\r', '\n')
}
