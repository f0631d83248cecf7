package try

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecover(t *testing.T) {
	t.Run("will update the error ref value", func(t *testing.T) {
		t.Run("if a panic is recovered and the ref is nil", func(t *testing.T) {
			f := func() (err error) {
				defer Recover(&err)
				panic("descriptor exploded")
			}

			err := f()

			var perr PanicError
			if !assert.ErrorAs(t, err, &perr) {
				return
			}
			assert.Equal(t, "descriptor exploded", perr.Value)
			assert.Nil(t, perr.Unwrap())
		})

		t.Run("if a panic is recovered and the ref is already set", func(t *testing.T) {
			funcErr := errors.New("install failed")
			panicErr := errors.New("nil config")
			f := func() (err error) {
				defer Recover(&err)
				err = funcErr
				panic(panicErr)
			}

			err := f()

			assert.ErrorIs(t, err, funcErr)
			assert.ErrorIs(t, err, panicErr)
		})
	})

	t.Run("will not update the error ref value", func(t *testing.T) {
		t.Run("if no panic occurred", func(t *testing.T) {
			f := func() (err error) {
				defer Recover(&err)
				return nil
			}

			assert.NoError(t, f())
		})
	})
}

func TestCall(t *testing.T) {
	t.Run("returns the function error", func(t *testing.T) {
		want := errors.New("boom")
		assert.ErrorIs(t, Call(func() error { return want }), want)
	})

	t.Run("converts a panic", func(t *testing.T) {
		err := Call(func() error {
			var m map[string]int
			m["x"] = 1
			return nil
		})

		var perr PanicError
		assert.ErrorAs(t, err, &perr)
	})
}
