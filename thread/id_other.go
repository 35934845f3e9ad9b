//go:build !linux

package thread

import (
	"bytes"
	"runtime"
	"strconv"
)

// current falls back to the goroutine id where the kernel thread id is not reachable
// without cgo; owners are locked goroutines so the mapping to a thread is still one-to-one
func current() ID {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 123 [running]:..."
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(field, ' '); i > 0 {
		field = field[:i]
	}
	gid, err := strconv.ParseUint(string(field), 10, 64)
	if err != nil {
		panic("thread: cannot parse goroutine id: " + err.Error())
	}
	return ID(gid)
}
