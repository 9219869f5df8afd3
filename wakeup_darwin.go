//go:build darwin

package nettle

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Darwin has no eventfd; the flags are accepted for signature parity with
// the Linux build and mapped onto the pipe's own close-on-exec and
// non-blocking setup below.
const (
	EFD_CLOEXEC  = unix.O_CLOEXEC
	EFD_NONBLOCK = unix.O_NONBLOCK
)

// createWakeFd creates the executor's wakeup primitive. On Darwin that is
// a self-pipe: the read end goes to kqueue, Submit-side goroutines write
// a byte to the write end. Both ends are close-on-exec and non-blocking,
// so a burst of wakeups can never stall a submitter.
func createWakeFd(initval uint, flags int) (int, int, error) {
	_ = initval
	_ = flags

	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}

	cleanup := func() {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
	}

	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])

	if err := syscall.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return 0, 0, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return 0, 0, err
	}

	return fds[0], fds[1], nil
}
