// Package try converts panics raised by installation steps into errors.
package try

import (
	"errors"
	"fmt"
)

// PanicError is a recovered panic value.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("recovered from panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Recover stores a recovered panic in err, joining it with any error
// already set. It must be called directly by defer.
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}

	perr := PanicError{
		Value: r,
	}
	if *err == nil {
		*err = perr
		return
	}
	*err = errors.Join(*err, perr)
}

// Call runs f and returns its error, or the panic it raised as a PanicError.
func Call(f func() error) (err error) {
	defer Recover(&err)
	return f()
}
