//go:build linux

package thread

import "golang.org/x/sys/unix"

// current uses the kernel thread id; a locked goroutine owns its thread exclusively so no
// other goroutine can observe the same value while the lock is held
func current() ID {
	return ID(unix.Gettid())
}
