//go:build linux

package hook

import "syscall"

// credential builds the SysProcAttr that makes exec.Cmd drop the child to
// uid/gid before exec, via the kernel's clone(2)+setuid(2) path rather than
// a manual fork in this (multi-threaded) process.
func credential(uid, gid int) *syscall.SysProcAttr {
	if uid == 0 && gid == 0 {
		// Zero/zero means "no drop requested" (used by tests that don't run
		// as root); a real installation's g_uid/g_gid are never 0.
		return nil
	}
	return &syscall.SysProcAttr{
		Credential: &syscall.Credential{
			Uid: uint32(uid),
			Gid: uint32(gid),
		},
	}
}
