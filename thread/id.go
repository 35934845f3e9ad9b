package thread

import (
	"runtime"
	"strconv"
)

// ID is an opaque, comparable identity of an OS thread
// Captured once by the owning goroutine after it pins itself with Lock
type ID uint64

// None is the zero identity, never returned for a live thread
const None ID = 0

// Valid reports whether the identity refers to a thread
func (id ID) Valid() bool {
	return id != None
}

func (id ID) String() string {
	if id == None {
		return "none"
	}
	return strconv.FormatUint(uint64(id), 10)
}

// Lock pins the calling goroutine to its current OS thread and returns the thread identity
// Callers that own a queue must call Lock before publishing the identity; an unpinned
// goroutine may migrate and its identity is then meaningless
func Lock() ID {
	runtime.LockOSThread()
	return Current()
}

// Unlock releases the pin taken by Lock
func Unlock() {
	runtime.UnlockOSThread()
}

// Current returns the identity of the calling thread
func Current() ID {
	return current()
}

// Role names the engine threads a registry routes to
type Role uint8

const (
	RoleUnassigned Role = iota
	RoleMain
	RoleRender
)

func (r Role) String() string {
	switch r {
	case RoleMain:
		return "main"
	case RoleRender:
		return "render"
	default:
		return "unassigned"
	}
}
