// Package hotplug reads kernel block-device hotplug events from the
// NETLINK_KOBJECT_UEVENT socket and enriches each one with the filesystem
// properties udev recorded for it, producing values that satisfy
// device.Handle (spec.md §4.5 "Hotplug ready", §3 "udev_handle").
package hotplug

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/go-ldm/ldm/device"
)

// recvBufferSize bounds a single uevent datagram; the kernel never sends a
// kobject uevent larger than a few kilobytes.
const recvBufferSize = 16 * 1024

// Source is an open netlink socket bound to the kernel uevent multicast
// group. ReadEvent blocks the calling goroutine until the kernel has a
// datagram ready, fitting the same one-goroutine-per-source model as
// control.Channel.ReadMessage.
type Source struct {
	fd int
}

// Open binds a new Source to the kernel uevent group. The kernel group (1)
// is used rather than the udev group (2): it requires no running udevd and
// delivers the same ADD/REMOVE/CHANGE stream, at the cost of the daemon
// doing its own udev-database lookups for filesystem properties (see
// enrich).
func Open() (*Source, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}
	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Source{fd: fd}, nil
}

// Close releases the netlink socket.
func (s *Source) Close() error {
	return unix.Close(s.fd)
}

// ReadEvent blocks until the kernel delivers one uevent, parses it, and
// enriches it with the device's recorded udev properties. Non-block
// subsystems (anything but SUBSYSTEM=block) are reported with a blank
// Action so the caller can skip them without treating the read as an error.
func (s *Source) ReadEvent() (Handle, error) {
	buf := make([]byte, recvBufferSize)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		return Handle{}, err
	}
	return parse(buf[:n]), nil
}

// Handle is one block device's kernel-reported identity, satisfying
// device.Handle. It also carries the hotplug action string the event loop
// dispatches on.
type Handle struct {
	action string
	props  map[string]string
}

// Action is the dispatch key for the event loop: "add", "remove", "change",
// or "" for events the loop should silently skip (spec.md §4.5).
func (h Handle) Action() string {
	if h.props["SUBSYSTEM"] != "block" {
		return ""
	}
	return h.action
}

func (h Handle) Devnode() string {
	if name := h.props["DEVNAME"]; name != "" {
		return "/dev/" + name
	}
	return ""
}

// Aliases returns the device's symlink names in kernel-reported order, as
// recorded by udev in DEVLINKS (space-separated absolute paths).
func (h Handle) Aliases() []string {
	links := h.props["DEVLINKS"]
	if links == "" {
		return nil
	}
	return strings.Fields(links)
}

// Kind classifies the device by udev's ID_TYPE property (set by the
// cdrom_id rule for optical drives) and falls back to DEVTYPE for ordinary
// disks and partitions (spec.md §3, §9 "Polymorphism").
func (h Handle) Kind() device.Kind {
	switch h.props["ID_TYPE"] {
	case "cd":
		return device.Optical
	}
	switch h.props["DEVTYPE"] {
	case "disk", "partition":
		return device.Volume
	}
	return device.Unknown
}

func (h Handle) Filesystem() string { return h.props["ID_FS_TYPE"] }
func (h Handle) Label() string      { return h.props["ID_FS_LABEL"] }
func (h Handle) UUID() string       { return h.props["ID_FS_UUID"] }

func (h Handle) Serial() string {
	if s := h.props["ID_SERIAL_SHORT"]; s != "" {
		return s
	}
	return h.props["ID_SERIAL"]
}

// HasMedia reports filesystem-usage presence for Volume devices and the
// cdrom media-presence property for Optical devices (spec.md §3).
func (h Handle) HasMedia() bool {
	if h.Kind() == device.Optical {
		return h.props["ID_CDROM_MEDIA"] == "1"
	}
	return h.props["ID_FS_USAGE"] != ""
}

// parse decodes one kernel uevent datagram. The wire format is a leading
// "ACTION@DEVPATH" line followed by NUL-separated "KEY=VALUE" properties,
// all NUL-terminated, no trailing newline.
func parse(b []byte) Handle {
	fields := bytes.Split(b, []byte{0})
	props := map[string]string{}
	var action string
	for i, f := range fields {
		if len(f) == 0 {
			continue
		}
		if i == 0 {
			if at := bytes.IndexByte(f, '@'); at >= 0 {
				action = string(f[:at])
			}
			continue
		}
		if eq := bytes.IndexByte(f, '='); eq >= 0 {
			props[string(f[:eq])] = string(f[eq+1:])
		}
	}
	h := Handle{action: action, props: props}
	enrich(h.props)
	return h
}

// enrich fills in the ID_FS_*/ID_TYPE/ID_CDROM_MEDIA/DEVLINKS properties a
// raw kernel uevent never carries (those are udev-rule output, not kernel
// state) by reading the udev device database udevd maintains at
// /run/udev/data/b<major>:<minor>. Each line there is "E:KEY=VALUE"; see
// udevRecordPath.
func enrich(props map[string]string) {
	major, minor := props["MAJOR"], props["MINOR"]
	if major == "" || minor == "" {
		return
	}
	f, err := os.Open(udevRecordPath(major, minor))
	if err != nil {
		return
	}
	defer f.Close()

	data := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		data = append(data, buf[:n]...)
		if err != nil {
			break
		}
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "E:") {
			continue
		}
		kv := strings.SplitN(line[2:], "=", 2)
		if len(kv) != 2 {
			continue
		}
		if _, already := props[kv[0]]; !already {
			props[kv[0]] = kv[1]
		}
	}
}

// udevDataDir is a var so tests can point it at a scratch directory.
var udevDataDir = "/run/udev/data"

func udevRecordPath(major, minor string) string {
	return filepath.Join(udevDataDir, fmt.Sprintf("b%s:%s", major, minor))
}

// Enumerate walks /sys/class/block to synthesize "add" events for every
// block device already present at startup, so devices attached before the
// daemon starts are admitted the same way a live hotplug add would be
// (SPEC_FULL.md "Supplemented Features").
func Enumerate() ([]Handle, error) {
	entries, err := os.ReadDir("/sys/class/block")
	if err != nil {
		return nil, err
	}
	var out []Handle
	for _, ent := range entries {
		devPath := filepath.Join("/sys/class/block", ent.Name())
		uevent, err := os.ReadFile(filepath.Join(devPath, "uevent"))
		if err != nil {
			continue
		}
		props := map[string]string{}
		for _, line := range strings.Split(string(uevent), "\n") {
			kv := strings.SplitN(line, "=", 2)
			if len(kv) == 2 {
				props[kv[0]] = kv[1]
			}
		}
		if props["SUBSYSTEM"] == "" {
			props["SUBSYSTEM"] = "block"
		}
		if _, ok := props["MAJOR"]; !ok {
			if maj, min, ok := readDevNumbers(devPath); ok {
				props["MAJOR"] = maj
				props["MINOR"] = min
			}
		}
		enrich(props)
		out = append(out, Handle{action: "add", props: props})
	}
	return out, nil
}

func readDevNumbers(sysPath string) (major, minor string, ok bool) {
	b, err := os.ReadFile(filepath.Join(sysPath, "dev"))
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimSpace(string(b)), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return "", "", false
	}
	return parts[0], parts[1], true
}
