package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ProtocolError is a malformed request; the connection can not be used
// after one.
type ProtocolError struct {
	Message string
}

func (pe *ProtocolError) Error() string {
	return "Protocol error: " + pe.Message
}

func protocolError(format string, args ...interface{}) error {
	return &ProtocolError{Message: fmt.Sprintf(format, args...)}
}

// RequestReader reads requests: either arrays of bulk strings or inline
// commands separated by spaces.
type RequestReader struct {
	rdr        *bufio.Reader
	maxBulkLen int
	maxArgs    int
}

func NewRequestReader(rdr io.Reader, maxBulkLen, maxArgs int) *RequestReader {
	return &RequestReader{
		rdr:        bufio.NewReaderSize(rdr, 64*1024),
		maxBulkLen: maxBulkLen,
		maxArgs:    maxArgs,
	}
}

// Buffered is the number of bytes of further requests already read.
func (rr *RequestReader) Buffered() int {
	return rr.rdr.Buffered()
}

func (rr *RequestReader) readLine() ([]byte, error) {
	line, err := rr.rdr.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, protocolError("too big request line")
	} else if err != nil {
		if err == io.EOF && len(line) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	line = line[:len(line)-1]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, nil
}

func (rr *RequestReader) readLength(line []byte, what string, max int) (int, error) {
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil || n > max {
		return 0, protocolError("invalid %s length", what)
	}
	return n, nil
}

// ReadRequest returns the arguments of the next request; the first argument
// is the command name. An empty request has no arguments.
func (rr *RequestReader) ReadRequest() ([][]byte, error) {
	line, err := rr.readLine()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '*' {
		args := bytes.Fields(line)
		for i, arg := range args {
			args[i] = append([]byte(nil), arg...)
		}
		return args, nil
	}

	n, err := rr.readLength(line, "multibulk", rr.maxArgs)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	args := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		line, err := rr.readLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 || line[0] != '$' {
			return nil, protocolError("expected '$', got '%s'", firstByte(line))
		}
		l, err := rr.readLength(line, "bulk", rr.maxBulkLen)
		if err != nil {
			return nil, err
		} else if l < 0 {
			return nil, protocolError("invalid bulk length")
		}

		arg := make([]byte, l+2)
		_, err = io.ReadFull(rr.rdr, arg)
		if err != nil {
			return nil, err
		}
		if arg[l] != '\r' || arg[l+1] != '\n' {
			return nil, protocolError("bulk string not terminated by CRLF")
		}
		args = append(args, arg[:l])
	}
	return args, nil
}

func firstByte(line []byte) string {
	if len(line) == 0 {
		return ""
	}
	return string(line[:1])
}
