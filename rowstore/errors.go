package rowstore

import (
	"errors"
	"fmt"
)

// Class groups backend error codes the way callers need to react to them.
type Class int

const (
	NoError Class = iota
	NoDataFound
	ConstraintViolation
	TemporaryResourceError
	ApplicationError
	SchemaError
	InternalError
)

func (c Class) String() string {
	switch c {
	case NoError:
		return "no error"
	case NoDataFound:
		return "no data found"
	case ConstraintViolation:
		return "constraint violation"
	case TemporaryResourceError:
		return "temporary resource error"
	case ApplicationError:
		return "application error"
	case SchemaError:
		return "schema error"
	case InternalError:
		return "internal error"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

const (
	CodeForeignKeyRestrict = 256
	CodeLockConflict       = 266
	CodeNoDataFound        = 626
	CodeDuplicateKey       = 630
	CodeNoSuchTable        = 723
	CodeStoreClosed        = 4009
	CodeTxAborted          = 4350
	CodeKVFailure          = 4000
)

// Error is a backend error; Code is stable and reported to clients.
type Error struct {
	Code    int
	Class   Class
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rowstore: %s (code %d)", e.Message, e.Code)
}

func newError(code int, class Class, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Class:   class,
		Message: fmt.Sprintf(format, args...),
	}
}

// ExitNOK is returned by a Program to abort the transaction with an
// application defined code.
func ExitNOK(code int, format string, args ...interface{}) error {
	return newError(code, ApplicationError, format, args...)
}

// ErrorCode returns the backend code carried by err, if any.
func ErrorCode(err error) (int, bool) {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Code, true
	}
	return 0, false
}

func IsNoDataFound(err error) bool {
	var rerr *Error
	return errors.As(err, &rerr) && rerr.Class == NoDataFound
}

// NoData is returned by a Program to report that the row it requires is
// missing; IsNoDataFound is true for the error.
func NoData(format string, args ...interface{}) error {
	return newError(CodeNoDataFound, NoDataFound, format, args...)
}
