package go_func_utils

import (
	"runtime/debug"

	"go.uber.org/zap"
)

// SafeGo runs fn on a new goroutine. A panic is written to the logger with its stack
// before being re-raised, so it is not lost when stdout/stderr are not being watched.
func SafeGo(logger *zap.SugaredLogger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("PANIC in goroutine", "goroutine", name, "panic", r, "stack", string(debug.Stack()))
				_ = logger.Sync()
				panic(r)
			}
		}()
		fn()
	}()
}

// Recover runs fn and converts a panic into a logged error. It is used for callbacks supplied
// by collaborators, where one misbehaving listener must not take down the lane it runs on.
// It reports whether fn completed without panicking.
func Recover(logger *zap.SugaredLogger, name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("recovered panic", "callback", name, "panic", r, "stack", string(debug.Stack()))
			ok = false
		}
	}()
	fn()
	return true
}
