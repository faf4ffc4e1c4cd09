// Package assert provides programming-error checks that are fatal in debug
// builds (built with -tags hevcenc_debug) and compiled out otherwise.
//
// Callers must still handle the failure path: in release builds That returns
// false and the caller falls back to its error return.
package assert

import (
	"fmt"
	"runtime/debug"
)

// That reports whether cond holds. In debug builds a false cond panics with
// the formatted message and the current stack.
func That(cond bool, format string, args ...any) bool {
	if cond {
		return true
	}
	if Enabled {
		panic("assertion failed: " + fmt.Sprintf(format, args...) + "\n" + string(debug.Stack()))
	}
	return false
}
