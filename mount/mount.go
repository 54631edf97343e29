// Package mount wraps the platform mount/unmount syscalls behind a small
// interface so the lifecycle engine never touches golang.org/x/sys/unix
// directly (spec.md §4.4 calls these "the platform mount primitive").
package mount

import "golang.org/x/sys/unix"

// Mounter performs the two syscalls the lifecycle engine needs. The real
// implementation is System; tests substitute a fake.
type Mounter interface {
	Mount(source, target, fstype, options string, readOnly bool) error
	Unmount(target string) error
}

// System is the real Mounter, backed by unix.Mount/unix.Unmount.
type System struct{}

// Mount mounts source at target with fstype and the given comma-joined
// options. readOnly sets MS_RDONLY (used for optical media, spec.md §4.4).
func (System) Mount(source, target, fstype, options string, readOnly bool) error {
	var flags uintptr
	if readOnly {
		flags |= unix.MS_RDONLY
	}
	return unix.Mount(source, target, fstype, flags, options)
}

// Unmount unmounts target. spec.md §9 Design Notes flags that the original C
// source unmounts by devnode; most kernels accept either, but the mountpoint
// is the unambiguous choice when only one is supported, so System always
// unmounts by target (the mountpoint), not by source.
func (System) Unmount(target string) error {
	return unix.Unmount(target, 0)
}
