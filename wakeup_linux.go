//go:build linux

package nettle

import (
	"golang.org/x/sys/unix"
)

const (
	EFD_CLOEXEC  = unix.EFD_CLOEXEC
	EFD_NONBLOCK = unix.EFD_NONBLOCK
)

// createWakeFd creates the executor's wakeup primitive. On Linux that is
// a single eventfd, returned as both the read and write end: Submit-side
// goroutines write a counter increment, the loop's poller observes the fd
// readable and drains it.
func createWakeFd(initval uint, flags int) (int, int, error) {
	fd, err := unix.Eventfd(initval, flags)
	return fd, fd, err
}
