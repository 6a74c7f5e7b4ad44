//go:build unix

package ipc

import "golang.org/x/sys/unix"

// closeOnExec keeps the inherited channel out of processes this worker
// starts itself.
func closeOnExec(fds ...int) {
	for _, fd := range fds {
		unix.CloseOnExec(fd)
	}
}
