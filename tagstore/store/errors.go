package store

import "errors"

// Error kinds returned by the store. Match them with errors.Is.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNotFound             = errors.New("not found")
	ErrSerializationFailed  = errors.New("serialization failed")
	ErrNotImplemented       = errors.New("not implemented")
)

var kinds = []error{
	ErrInvalidConfiguration,
	ErrStorageUnavailable,
	ErrInvalidArgument,
	ErrNotFound,
	ErrSerializationFailed,
	ErrNotImplemented,
}

// Error describes a failed store operation. It unwraps to both its Kind and the cause.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func newError(op, path string, kind, err error) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	msg := "store: " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the store error kind carried by err, or nil
func KindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
