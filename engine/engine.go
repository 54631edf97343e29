// Package engine is the event loop and dispatcher: it multiplexes the four
// readiness sources spec.md §2 describes through Go channels instead of a
// single OS-level multi-wait call, then services whatever is ready in the
// fixed priority order spec.md §4.5 specifies (spec.md §4.5, §5).
package engine

import (
	"errors"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/go-ldm/ldm/control"
	"github.com/go-ldm/ldm/device"
	"github.com/go-ldm/ldm/fstab"
	"github.com/go-ldm/ldm/hotplug"
	"github.com/go-ldm/ldm/lifecycle"
)

// Logger is the narrow leveled-error sink the loop needs; *logging.Logger
// satisfies it.
type Logger interface {
	Errorf(format string, args ...interface{}) error
}

// HotplugSource is the subset of *hotplug.Source the loop needs; tests
// substitute a fake that never touches a real netlink socket.
type HotplugSource interface {
	ReadEvent() (hotplug.Handle, error)
	Close() error
}

// ControlSource is the subset of *control.Channel the loop needs.
type ControlSource interface {
	ReadMessage() (control.Message, bool, error)
}

// Loop owns the four feeder goroutines and runs the single-threaded
// dispatcher. Nothing outside Run ever touches the Registry or the table
// Cache: every mutation happens on the goroutine that calls Run (spec.md
// §5 "Shared resources").
type Loop struct {
	Lifecycle *lifecycle.Engine
	Tables    *fstab.Cache
	Registry  *device.Registry
	Control   ControlSource
	Hotplug   HotplugSource
	Logger    Logger

	AdminTablePath  string
	KernelTablePath string

	stop chan struct{}
}

func (l *Loop) logf(format string, args ...interface{}) {
	if l.Logger != nil {
		_ = l.Logger.Errorf(format, args...)
	}
}

// Stop requests a graceful shutdown; Run returns once the current wakeup's
// handlers finish (spec.md §5 "Cancellation and shutdown").
func (l *Loop) Stop() {
	if l.stop != nil {
		close(l.stop)
	}
}

// Run starts the feeder goroutines and services events until Stop is
// called. On return, every tracked Device has been unmounted, the admin
// and kernel table watches are closed, and the hotplug socket is closed
// (the shutdown path; the caller is still responsible for the pid-file and
// control pipe, which outlive the Registry).
func (l *Loop) Run() error {
	l.stop = make(chan struct{})

	hotplugCh, hotplugErrCh := l.feedHotplug()
	adminCh, adminWatcher, err := l.feedAdminTable()
	if err != nil {
		return err
	}
	defer adminWatcher.Close()
	kernelCh := l.feedKernelTable()
	controlCh := l.feedControl()

	for {
		select {
		case <-l.stop:
			return l.shutdown()
		default:
		}

		if l.serviceOnce(hotplugCh, hotplugErrCh, adminCh, kernelCh, controlCh) {
			continue
		}

		select {
		case <-l.stop:
			return l.shutdown()
		case ev := <-hotplugCh:
			l.handleHotplug(ev)
		case err := <-hotplugErrCh:
			l.logf("engine: hotplug source: %v", err)
		case <-adminCh:
			if !l.reloadAdminTable() {
				return l.shutdown()
			}
		case <-kernelCh:
			l.reloadKernelTableAndReconcile()
		case msg := <-controlCh:
			l.handleControl(msg)
		}
	}
}

// serviceOnce drains every source that already has something ready, in
// priority order, without blocking. It returns true if it handled at least
// one event, so the caller re-checks from the top before ever blocking
// (spec.md §4.5 "all ready branches are serviced in the same wakeup").
func (l *Loop) serviceOnce(hotplugCh <-chan hotplug.Handle, hotplugErrCh <-chan error, adminCh <-chan struct{}, kernelCh <-chan struct{}, controlCh <-chan control.Message) bool {
	handled := false

	for {
		select {
		case ev := <-hotplugCh:
			l.handleHotplug(ev)
			handled = true
			continue
		case err := <-hotplugErrCh:
			l.logf("engine: hotplug source: %v", err)
			handled = true
			continue
		default:
		}
		break
	}

	select {
	case <-adminCh:
		if !l.reloadAdminTable() {
			// A fatal table reload asks Run to exit; signal via stop.
			l.Stop()
		}
		handled = true
	default:
	}

	select {
	case <-kernelCh:
		l.reloadKernelTableAndReconcile()
		handled = true
	default:
	}

	select {
	case msg := <-controlCh:
		l.handleControl(msg)
		handled = true
	default:
	}

	return handled
}

// Event is one hotplug event as the dispatcher sees it: the device's
// identity plus the action string it dispatches on. hotplug.Handle
// satisfies it; tests pass a fake.
type Event interface {
	device.Handle
	Action() string
}

func (l *Loop) handleHotplug(h Event) {
	switch h.Action() {
	case "add":
		if _, err := l.Lifecycle.Mount(h); err != nil {
			l.logf("engine: admit/mount %s: %v", h.Devnode(), err)
		}
	case "remove":
		if err := l.Lifecycle.Unmount(h.Devnode()); err != nil {
			l.logf("engine: unmount %s: %v", h.Devnode(), err)
		}
	case "change":
		if err := l.Lifecycle.Change(h); err != nil {
			l.logf("engine: change %s: %v", h.Devnode(), err)
		}
	}
	// Any other (or blank) action string is silently ignored, per spec.md §4.5.
}

func (l *Loop) handleControl(msg control.Message) {
	if msg.Cmd != control.Remove {
		return
	}
	if err := l.Lifecycle.Unmount(msg.Arg); err != nil {
		l.logf("engine: control remove %s: %v", msg.Arg, err)
	}
}

func (l *Loop) reloadAdminTable() (ok bool) {
	if err := l.Tables.Reload(fstab.Admin); err != nil {
		l.logf("engine: reload admin table: %v", err)
		return false
	}
	return true
}

// reloadKernelTableAndReconcile reloads the kernel table and then unmounts
// any registered Device the kernel no longer lists as mounted (spec.md
// §4.5 "reconciliation pass"). A reload failure is treated the same as an
// admin-table failure: fatal to the loop.
func (l *Loop) reloadKernelTableAndReconcile() {
	if err := l.Tables.Reload(fstab.Kernel); err != nil {
		l.logf("engine: reload kernel table: %v", err)
		l.Stop()
		return
	}
	for _, d := range l.Registry.All() {
		if _, mounted := l.Tables.Find(fstab.Kernel, d.Handle); !mounted {
			if err := l.Lifecycle.Unmount(d.Devnode()); err != nil {
				l.logf("engine: reconcile unmount %s: %v", d.Devnode(), err)
			}
		}
	}
}

// shutdown unmounts every tracked device and releases the sources this
// Loop owns (spec.md §5 "shutdown path").
func (l *Loop) shutdown() error {
	for _, d := range l.Registry.All() {
		if err := l.Lifecycle.Unmount(d.Devnode()); err != nil {
			l.logf("engine: shutdown unmount %s: %v", d.Devnode(), err)
		}
	}
	if l.Hotplug != nil {
		if err := l.Hotplug.Close(); err != nil {
			l.logf("engine: close hotplug source: %v", err)
		}
	}
	return nil
}

func (l *Loop) feedHotplug() (<-chan hotplug.Handle, <-chan error) {
	ch := make(chan hotplug.Handle)
	errCh := make(chan error, 1)
	if l.Hotplug == nil {
		return ch, errCh
	}
	go func() {
		for {
			h, err := l.Hotplug.ReadEvent()
			if err != nil {
				select {
				case errCh <- err:
				case <-l.stop:
				}
				return
			}
			select {
			case ch <- h:
			case <-l.stop:
				return
			}
		}
	}()
	return ch, errCh
}

func (l *Loop) feedAdminTable() (<-chan struct{}, *fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	dir := parentDir(l.AdminTablePath)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, nil, err
	}
	ch := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != l.AdminTablePath {
					continue
				}
				select {
				case ch <- struct{}{}:
				case <-l.stop:
					return
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ch, w, nil
}

func parentDir(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// feedControl runs the control channel's read-drain-reopen loop (spec.md
// §4.8) in its own goroutine, one ReadMessage call per iteration.
func (l *Loop) feedControl() <-chan control.Message {
	ch := make(chan control.Message)
	if l.Control == nil {
		return ch
	}
	go func() {
		for {
			msg, ok, err := l.Control.ReadMessage()
			if err != nil {
				if errors.Is(err, os.ErrClosed) {
					return
				}
				l.logf("engine: control channel: %v", err)
				continue
			}
			if !ok {
				continue
			}
			select {
			case ch <- msg:
			case <-l.stop:
				return
			}
		}
	}()
	return ch
}
