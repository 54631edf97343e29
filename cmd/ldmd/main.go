// Command ldmd is the automount daemon (spec.md §1, §6). Invoked with -r it
// instead acts as the one-shot control client: it writes a removal request
// to a running daemon's control pipe and exits.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-ldm/ldm/config"
	"github.com/go-ldm/ldm/control"
	"github.com/go-ldm/ldm/device"
	"github.com/go-ldm/ldm/engine"
	"github.com/go-ldm/ldm/fstab"
	"github.com/go-ldm/ldm/hook"
	"github.com/go-ldm/ldm/hotplug"
	"github.com/go-ldm/ldm/lifecycle"
	"github.com/go-ldm/ldm/logging"
	"github.com/go-ldm/ldm/mount"
	"github.com/go-ldm/ldm/privilege"
	"github.com/go-ldm/ldm/singleton"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: ldmd -d -u <uid> -g <gid> [-F] [-c <config>]\n")
	fmt.Fprintf(os.Stderr, "       ldmd -r <devnode-or-mountpoint>\n")
}

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		if err == config.ErrMissingUIDGID {
			fmt.Fprintln(os.Stderr, err)
			usage()
		} else {
			fmt.Fprintf(os.Stderr, "ldmd: %v\n", err)
		}
		os.Exit(2)
	}

	if cfg.Help {
		usage()
		return
	}

	if cfg.Remove != "" {
		if err := runClient(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "ldmd: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runDaemon(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "ldmd: %v\n", err)
		os.Exit(1)
	}
}

// runClient is the -r control mode: open the pipe, write the request, exit
// (spec.md §6).
func runClient(cfg *config.Config) error {
	return control.Send(cfg.ControlPipe, cfg.Remove)
}

func runDaemon(cfg *config.Config) error {
	if err := privilege.RequireSuperuser(); err != nil {
		return err
	}

	guard, err := singleton.Acquire(cfg.PidFile)
	if err != nil {
		return err
	}
	defer guard.Release()

	lg, err := logging.New(cfg.Foreground)
	if err != nil {
		return err
	}

	tables := fstab.NewCache(cfg.AdminTable, cfg.KernelTable)
	if err := tables.Reload(fstab.Admin); err != nil {
		return fmt.Errorf("loading admin table %s: %w", cfg.AdminTable, err)
	}
	if err := tables.Reload(fstab.Kernel); err != nil {
		return fmt.Errorf("loading kernel table %s: %w", cfg.KernelTable, err)
	}

	registry := device.NewRegistry(cfg.RegistryCapacity)

	le := &lifecycle.Engine{
		Registry: registry,
		Tables:   tables,
		Mounter:  mount.System{},
		Hook: hook.Invoker{
			Path:    cfg.HookPath,
			UID:     cfg.UID,
			GID:     cfg.GID,
			Timeout: cfg.HookTimeout,
		},
		GlobalHook: hook.Invoker{
			Path:    cfg.GlobalHookPath,
			UID:     cfg.UID,
			GID:     cfg.GID,
			Timeout: cfg.HookTimeout,
		},
		Logger: lg,
		Root:   cfg.MountRoot,
		UID:    cfg.UID,
		GID:    cfg.GID,
	}

	src, err := hotplug.Open()
	if err != nil {
		return fmt.Errorf("opening hotplug source: %w", err)
	}

	seedExistingDevices(le, lg)

	pipe, err := control.Create(cfg.ControlPipe)
	if err != nil {
		src.Close()
		return fmt.Errorf("creating control pipe %s: %w", cfg.ControlPipe, err)
	}
	defer control.Unlink(cfg.ControlPipe)

	loop := &engine.Loop{
		Lifecycle:       le,
		Tables:          tables,
		Registry:        registry,
		Control:         pipe,
		Hotplug:         src,
		Logger:          lg,
		AdminTablePath:  cfg.AdminTable,
		KernelTablePath: cfg.KernelTable,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigCh
		loop.Stop()
	}()

	return loop.Run()
}

// seedExistingDevices admits whatever removable media is already present at
// startup, so devices inserted before the daemon started are not missed
// (spec.md §4.1 "startup enumeration").
func seedExistingDevices(le *lifecycle.Engine, lg *logging.Logger) {
	handles, err := hotplug.Enumerate()
	if err != nil {
		lg.Errorf("ldmd: enumerating existing devices: %v", err)
		return
	}
	for _, h := range handles {
		if _, err := le.Mount(h); err != nil {
			lg.Errorf("ldmd: startup mount %s: %v", h.Devnode(), err)
		}
	}
}
