// Package quirks maps a filesystem name to the mount-option and ownership
// deviations the daemon applies automatically (spec.md §4.2).
package quirks

import (
	"fmt"
	"strings"
)

// Flag is one bit of filesystem-specific deviation from default mount
// behavior.
type Flag int

const (
	// OwnerFix asserts uid/gid mount options and suppresses the post-mount
	// chown (the filesystem has no native ownership of its own, so the
	// kernel driver is told who owns it at mount time instead).
	OwnerFix Flag = 1 << iota
	// Utf8 requests the utf8 mount option.
	Utf8
	// Mask requests dmask/fmask options (FAT directory/file mode masks).
	Mask
	// Flush requests the flush mount option (write-through for removable FAT
	// media, so unplugging without a preceding sync doesn't lose data).
	Flush
)

type entry struct {
	fs    string
	flags Flag
}

// table is the fixed filesystem -> flags mapping from spec.md §4.2. Order
// matters for nothing here; fragment order is fixed separately in Options.
var table = []entry{
	{"msdos", OwnerFix | Utf8},
	{"umsdos", OwnerFix | Utf8},
	{"vfat", OwnerFix | Utf8 | Mask | Flush},
	{"exfat", OwnerFix},
	{"ntfs", OwnerFix | Utf8},
	{"iso9660", OwnerFix | Utf8},
	{"udf", OwnerFix},
}

// For returns the quirk bitmask for fs. Filesystems absent from the table
// (including "") carry no quirks.
func For(fs string) Flag {
	for _, e := range table {
		if e.fs == fs {
			return e.flags
		}
	}
	return 0
}

// Has reports whether flags contains bit.
func (flags Flag) Has(bit Flag) bool {
	return flags&bit != 0
}

// Options assembles the canonical, comma-joined mount-option fragment for
// flags given the target uid/gid, in the fixed order OwnerFix, Utf8, Flush,
// Mask, with no trailing comma (spec.md §8 testable property).
func Options(flags Flag, uid, gid int) string {
	var parts []string
	if flags.Has(OwnerFix) {
		parts = append(parts, fmt.Sprintf("uid=%d,gid=%d", uid, gid))
	}
	if flags.Has(Utf8) {
		parts = append(parts, "utf8")
	}
	if flags.Has(Flush) {
		parts = append(parts, "flush")
	}
	if flags.Has(Mask) {
		parts = append(parts, "dmask=000,fmask=111")
	}
	return strings.Join(parts, ",")
}

// Ineligible reports whether fs can never become a live Device per spec.md
// §3's invariants: absent, swap, an LVM member, or a LUKS container.
func Ineligible(fs string) bool {
	switch fs {
	case "", "swap", "LVM2_member", "crypto_LUKS":
		return true
	}
	return false
}
