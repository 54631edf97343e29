package engine

import (
	"os"

	"golang.org/x/sys/unix"
)

// kernelPollTimeoutMillis bounds how long each poll wait blocks before
// re-checking for shutdown; it is not a polling interval in the busy-loop
// sense; unix.Poll still returns immediately the instant the kernel table
// changes.
const kernelPollTimeoutMillis = 1000

// feedKernelTable watches the kernel mount table (normally
// /proc/self/mounts) for the error-readiness condition Linux's poll(2)
// reports on that pseudo-file whenever its contents change (spec.md §2
// "Kernel-table watch"). Neither fsnotify nor any stdlib API exposes
// POLLERR/POLLPRI semantics, so this is the one source that talks to
// unix.Poll directly instead of going through a higher-level watcher.
func (l *Loop) feedKernelTable() <-chan struct{} {
	ch := make(chan struct{})
	f, err := os.Open(l.KernelTablePath)
	if err != nil {
		l.logf("engine: open kernel table %s: %v", l.KernelTablePath, err)
		return ch
	}

	go func() {
		defer f.Close()
		fd := int(f.Fd())
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLERR | unix.POLLPRI}}
		for {
			select {
			case <-l.stop:
				return
			default:
			}
			n, err := unix.Poll(fds, kernelPollTimeoutMillis)
			if err != nil {
				if err == unix.EINTR {
					continue
				}
				l.logf("engine: poll kernel table: %v", err)
				return
			}
			if n == 0 {
				continue
			}
			if fds[0].Revents&(unix.POLLERR|unix.POLLPRI) == 0 {
				continue
			}
			select {
			case ch <- struct{}{}:
			case <-l.stop:
				return
			}
		}
	}()
	return ch
}
