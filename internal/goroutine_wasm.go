//go:build wasm

package internal

// wasm runs a single goroutine at a time and goid is unavailable, so confinement holds trivially.

func currentGoroutine() int64 {
	return 0
}

func (e *Engine) checkGoroutine() error {
	return nil
}

func (e *Engine) mustOwn() {}
