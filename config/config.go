// Package config resolves the daemon's settings from CLI flags and an
// optional gcfg-format config file, in that precedence order over the
// compiled defaults (SPEC_FULL.md "Configuration"; spec.md §6 "External
// Interfaces").
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gravwell/gcfg"
	flag "github.com/spf13/pflag"

	"github.com/go-ldm/ldm/hook"
)

// Design defaults (spec.md §6 "Filesystem paths").
const (
	DefaultMountRoot        = "/mnt"
	DefaultPidFile          = "/run/ldm.pid"
	DefaultControlPipe      = "/run/ldm.fifo"
	DefaultAdminTable       = "/etc/fstab"
	DefaultKernelTable      = "/proc/self/mounts"
	DefaultRegistryCapacity = 20
	DefaultConfigPath       = "/etc/ldm.conf"
)

// ErrMissingUIDGID is returned when -u/-g were not both supplied in daemon
// mode (spec.md §6: "both mandatory; absence is a fatal usage error").
var ErrMissingUIDGID = errors.New("config: -u and -g are both required")

// ErrUsage wraps a usage-level argument error; cmd/ldmd treats it as a
// fatal, non-zero-exit startup error.
var ErrUsage = errors.New("config: usage error")

// Config is the fully resolved set of daemon settings: CLI overrides
// folded over an optional file overlay folded over the compiled defaults.
type Config struct {
	Daemon     bool
	Foreground bool
	Help       bool
	UID        int
	GID        int
	Remove     string // -r <path>, client mode; empty means daemon mode

	MountRoot        string
	PidFile          string
	ControlPipe      string
	AdminTable       string
	KernelTable      string
	RegistryCapacity int
	HookPath         string
	HookTimeout      time.Duration
	// GlobalHookPath, if set, is invoked in addition to (after) the
	// per-filesystem hook on every mount/unmount (config-file only; no CLI
	// flag, matching HookPath).
	GlobalHookPath string
}

// fileConfig is the gcfg overlay shape. Field names follow gcfg's
// underscore-to-ini-key convention, matching this codebase's other
// gcfg-backed config structs.
type fileConfig struct {
	Global struct {
		Mount_Root        string
		Pid_File          string
		Control_Pipe      string
		Admin_Table       string
		Kernel_Table      string
		Registry_Capacity int
		Hook_Path         string
		Hook_Timeout      int // seconds; 0 means "use the default"
		Global_Hook       string
	}
}

// maxConfigSize bounds how much of the config file Parse will read, a
// sanity check carried from this codebase's other gcfg loaders.
const maxConfigSize = 1 << 20

// Parse builds a Config from argv (excluding the program name). It applies
// the compiled defaults, overlays the config file named by -c (or
// DefaultConfigPath if -c is absent and that path exists), then overlays
// the explicit CLI flags.
func Parse(argv []string) (*Config, error) {
	fs := flag.NewFlagSet("ldmd", flag.ContinueOnError)
	fs.Usage = func() {}

	daemon := fs.BoolP("daemon", 'd', false, "daemon mode (accepted; the process does not fork or detach)")
	foreground := fs.BoolP("foreground", 'F', false, "stay in the foreground and mirror logs to stderr")
	help := fs.BoolP("help", 'h', false, "print usage and exit")
	uid := fs.IntP("uid", 'u', -1, "unprivileged uid volumes are owned by")
	gid := fs.IntP("gid", 'g', -1, "unprivileged gid volumes are owned by")
	remove := fs.StringP("remove", 'r', "", "client mode: request removal of the device at <path>")
	cfgPath := fs.StringP("config", 'c', "", "path to an optional ldm.conf overlay")

	if err := fs.Parse(argv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	c := &Config{
		MountRoot:        DefaultMountRoot,
		PidFile:          DefaultPidFile,
		ControlPipe:      DefaultControlPipe,
		AdminTable:       DefaultAdminTable,
		KernelTable:      DefaultKernelTable,
		RegistryCapacity: DefaultRegistryCapacity,
		HookTimeout:      hook.DefaultTimeout,
	}

	path := *cfgPath
	if path == "" {
		if _, err := os.Stat(DefaultConfigPath); err == nil {
			path = DefaultConfigPath
		}
	}
	if path != "" {
		if err := overlayFile(c, path); err != nil {
			return nil, err
		}
	}

	c.Daemon = *daemon
	c.Foreground = *foreground
	c.Help = *help
	c.Remove = *remove
	if *uid >= 0 {
		c.UID = *uid
	}
	if *gid >= 0 {
		c.GID = *gid
	}

	if c.Help {
		return c, nil
	}
	if c.Remove == "" && (*uid < 0 || *gid < 0) {
		return nil, ErrMissingUIDGID
	}
	return c, nil
}

func overlayFile(c *Config, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.Size() > maxConfigSize {
		return fmt.Errorf("config: %s exceeds %d bytes", path, maxConfigSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := gcfg.ReadStringInto(&fc, string(data)); err != nil {
		return err
	}

	g := fc.Global
	if g.Mount_Root != "" {
		c.MountRoot = g.Mount_Root
	}
	if g.Pid_File != "" {
		c.PidFile = g.Pid_File
	}
	if g.Control_Pipe != "" {
		c.ControlPipe = g.Control_Pipe
	}
	if g.Admin_Table != "" {
		c.AdminTable = g.Admin_Table
	}
	if g.Kernel_Table != "" {
		c.KernelTable = g.Kernel_Table
	}
	if g.Registry_Capacity > 0 {
		c.RegistryCapacity = g.Registry_Capacity
	}
	if g.Hook_Path != "" {
		c.HookPath = g.Hook_Path
	}
	if g.Hook_Timeout > 0 {
		c.HookTimeout = time.Duration(g.Hook_Timeout) * time.Second
	}
	if g.Global_Hook != "" {
		c.GlobalHookPath = g.Global_Hook
	}
	return nil
}
