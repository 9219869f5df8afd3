//go:build windows

package nettle

// Windows IOCP needs no wake fd: PostQueuedCompletionStatus posts a NULL
// completion straight to the port, and GetQueuedCompletionStatus returns
// with overlapped==nil. The eventfd flag constants exist only so the
// shared createWakeFd call site compiles on every platform.
const (
	EFD_CLOEXEC  = 0
	EFD_NONBLOCK = 0
)

// createWakeFd reports that no wake fds exist on this platform by
// returning -1 for both ends; New passes that descriptor to the
// poller's RegisterFD unchanged.
func createWakeFd(initval uint, flags int) (int, int, error) {
	return -1, -1, nil
}
