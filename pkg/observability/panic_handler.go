package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with structured logging.
//
// Call it in a defer statement. If a panic occurs it is recovered and
// logged at Error level with the panic value, the full stack trace, and
// context about where it happened. The panic is NOT re-raised; the
// goroutine returns normally. Metering is a side channel and must never
// take down the operation it measures.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}

// RecoverPanicWithCallback recovers from a panic, logs it, and executes a
// cleanup callback afterwards.
func RecoverPanicWithCallback(logger *Logger, context string, callback func()) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")

		if callback != nil {
			callback()
		}
	}
}
