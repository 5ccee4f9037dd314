//go:build !wasm

package internal

import (
	"fmt"

	"github.com/petermattis/goid"
)

func currentGoroutine() int64 {
	return goid.Get()
}

func (e *Engine) checkGoroutine() error {
	if !e.confined {
		return nil
	}

	if gid := currentGoroutine(); gid != e.goroutine {
		return fmt.Errorf("%w: bound to goroutine %d, called from %d", ErrWrongGoroutine, e.goroutine, gid)
	}
	return nil
}

// mustOwn guards calls that have no error to return.
func (e *Engine) mustOwn() {
	if err := e.checkGoroutine(); err != nil {
		panic(err)
	}
}
