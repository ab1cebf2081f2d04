package exception

import "fmt"

// ReadErrorKind classifies a reader failure.
type ReadErrorKind string

const (
	// ReadErrorParse means the source was reachable but a fragment could not be parsed or mapped.
	ReadErrorParse ReadErrorKind = "Parse"
	// ReadErrorIo means the source could not be opened or read.
	ReadErrorIo ReadErrorKind = "Io"
)

// ReadError is returned by item readers. It is fatal to the step.
type ReadError struct {
	Kind     ReadErrorKind
	Resource string
	Err      error
}

// NewReadError creates a ReadError.
func NewReadError(kind ReadErrorKind, resource string, err error) *ReadError {
	return &ReadError{Kind: kind, Resource: resource, Err: err}
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read error (%s) on %s: %v", e.Kind, e.Resource, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// TransformError is returned when a processor rejects an item.
type TransformError struct {
	Item interface{}
	Err  error
}

// NewTransformError creates a TransformError for the given item.
func NewTransformError(item interface{}, err error) *TransformError {
	return &TransformError{Item: item, Err: err}
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform error on item %v: %v", e.Item, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// WriteErrorKind classifies a writer failure.
type WriteErrorKind string

const (
	// WriteErrorIo means a file sink could not be opened or written.
	WriteErrorIo WriteErrorKind = "Io"
	// WriteErrorSql means the relational sink rejected a statement.
	WriteErrorSql WriteErrorKind = "Sql"
)

// WriteError is returned by item writers. It rolls back the chunk and fails the step.
type WriteError struct {
	Kind   WriteErrorKind
	Target string
	Err    error
}

// NewWriteError creates a WriteError.
func NewWriteError(kind WriteErrorKind, target string, err error) *WriteError {
	return &WriteError{Kind: kind, Target: target, Err: err}
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write error (%s) on %s: %v", e.Kind, e.Target, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
