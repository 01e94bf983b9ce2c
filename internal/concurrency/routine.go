// Package concurrency supervises the daemon's background goroutines.
package concurrency

import (
	"log/slog"
	"runtime/debug"
)

// PanicReport carries a recovered panic value with the stack captured at the
// recovery point.
type PanicReport struct {
	Value any
	Stack []byte
}

// SafeGo runs fn on its own goroutine. A panic is logged and handed to
// onPanic (when non-nil) instead of crashing the process.
func SafeGo(fn func(), onPanic func(PanicReport)) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			report := PanicReport{Value: r, Stack: debug.Stack()}
			slog.Error("Background goroutine panicked", "panic", r, "stack", string(report.Stack))
			if onPanic != nil {
				onPanic(report)
			}
		}()
		fn()
	}()
}
