package core

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"
)

// CrashHandler receives the recovered value of a panicking engine goroutine
type CrashHandler func(r any, stack []byte)

var crashHandler atomic.Pointer[CrashHandler]

func init() {
	h := CrashHandler(defaultCrashHandler)
	crashHandler.Store(&h)
}

// SetCrashHandler replaces the unified panic handler, nil restores the default
// The host installs one that restores the terminal before the process dies
func SetCrashHandler(h CrashHandler) {
	if h == nil {
		h = defaultCrashHandler
	}
	crashHandler.Store(&h)
}

// HandleCrash routes a recovered panic to the installed handler
func HandleCrash(r any) {
	if r == nil {
		return
	}
	(*crashHandler.Load())(r, debug.Stack())
}

// defaultCrashHandler logs and re-panics so the runtime still prints the trace and exits
func defaultCrashHandler(r any, stack []byte) {
	Logger().Error("goroutine crashed", "panic", fmt.Sprint(r), "stack", string(stack))
	panic(r)
}

// Go runs a function in a new goroutine with panic recovery
// Use this instead of the 'go' keyword for engine-owned loops
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				HandleCrash(r)
			}
		}()
		fn()
	}()
}
