package engine

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by mutating calls made before Init succeeds.
var ErrNotInitialized = errors.New("engine not initialized")

// NativeCallError wraps a failure reported by the engine boundary. It is
// propagated to the caller: a rejected write on a user-authored path must
// surface synchronously so the UI can react.
type NativeCallError struct {
	Op  string
	Err error
}

func (e *NativeCallError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *NativeCallError) Unwrap() error {
	return e.Err
}

// IsNativeCallError reports whether err originated at the engine boundary.
// Uses errors.As to handle wrapped errors.
func IsNativeCallError(err error) bool {
	var ne *NativeCallError
	return errors.As(err, &ne)
}

func nativeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &NativeCallError{Op: op, Err: err}
}
