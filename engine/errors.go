package engine

import (
	"errors"
	"fmt"

	"github.com/leftmike/rowdis/rowstore"
)

type Kind int

const (
	ValidationError Kind = iota + 1
	BackendUnavailable
	TransactionError
	OperationDefineError
	ExecutionError
	ConflictError
	MultiRowIncrementError
	NotIntegerError
	InternalConsistencyFault
)

func (k Kind) String() string {
	switch k {
	case ValidationError:
		return "validation error"
	case BackendUnavailable:
		return "backend unavailable"
	case TransactionError:
		return "transaction error"
	case OperationDefineError:
		return "operation define error"
	case ExecutionError:
		return "execution error"
	case ConflictError:
		return "conflict error"
	case MultiRowIncrementError:
		return "multi-row increment error"
	case NotIntegerError:
		return "not an integer"
	case InternalConsistencyFault:
		return "internal consistency fault"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

const (
	// Application codes returned by the programs the engine runs in the store.
	CodeMultiRowIncrement = 6001
	CodeNotInteger        = 6002
)

// Error is returned by every engine operation. Code is the backend code for
// errors which came from the store; it is zero otherwise.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 && e.Err != nil {
		return fmt.Sprintf("%s; BACKEND(%d) %s", e.Message, e.Code, backendDetail(e.Err))
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func backendDetail(err error) string {
	var rerr *rowstore.Error
	if errors.As(err, &rerr) {
		return rerr.Message
	}
	return err.Error()
}

func validationError(format string, args ...interface{}) error {
	return &Error{
		Kind:    ValidationError,
		Message: fmt.Sprintf(format, args...),
	}
}

// backendError wraps an error from the store. Execution errors are further
// classified by their backend code.
func backendError(kind Kind, msg string, err error) error {
	var eerr *Error
	if errors.As(err, &eerr) {
		return err
	}

	code, _ := rowstore.ErrorCode(err)
	if kind == ExecutionError {
		switch code {
		case rowstore.CodeForeignKeyRestrict:
			kind = ConflictError
		case CodeMultiRowIncrement:
			return &Error{
				Kind:    MultiRowIncrementError,
				Message: "value spans multiple rows and cannot be incremented",
				Err:     err,
			}
		case CodeNotInteger:
			return &Error{
				Kind:    NotIntegerError,
				Message: "value is not an integer or out of range",
				Err:     err,
			}
		}
	}
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: msg,
		Err:     err,
	}
}

// IsKind returns true if err is an engine error of kind k.
func IsKind(err error, k Kind) bool {
	var eerr *Error
	return errors.As(err, &eerr) && eerr.Kind == k
}
