// Package control implements the out-of-band control channel: a named
// one-shot pipe an unprivileged client writes a single remove request to
// (spec.md §4.8).
package control

import (
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Command is the single leading protocol byte.
type Command byte

// Remove is the only defined command: unmount the device named by the
// message argument (a devnode or mountpoint, trailing '/' stripped).
const Remove Command = 'R'

// DefaultMode is the pipe's permission bits: world-writable, so an
// unprivileged client can enqueue a removal (spec.md §4.8).
const DefaultMode = 0o666

// Message is one parsed control-channel request.
type Message struct {
	Cmd Command
	Arg string
}

// Channel is the named pipe at Path.
type Channel struct {
	Path string
}

// Create makes the named pipe at path if it does not already exist, with
// DefaultMode regardless of umask.
func Create(path string) (*Channel, error) {
	if err := unix.Mkfifo(path, DefaultMode); err != nil && !os.IsExist(err) {
		return nil, err
	}
	if err := os.Chmod(path, DefaultMode); err != nil {
		return nil, err
	}
	return &Channel{Path: path}, nil
}

// ReadMessage blocks until a writer connects, drains every byte of that
// single connection as one message, then closes its end — this both drains
// any remaining bytes and allows the next writer to reconnect (spec.md
// §4.8). An empty message or unknown command byte yields ok=false; the
// caller silently drops it per spec.md §7.
//
// Opening a FIFO for read blocks the calling goroutine (and, transitively,
// one OS thread) until a writer opens the other end; that goroutine
// boundary is exactly where this source fits into the engine's
// channel-based multi-wait (see engine.Loop), one source per goroutine
// feeding a shared event channel.
func (c *Channel) ReadMessage() (msg Message, ok bool, err error) {
	f, err := os.OpenFile(c.Path, os.O_RDONLY, 0)
	if err != nil {
		return
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return
	}
	if len(b) == 0 {
		return
	}
	cmd := Command(b[0])
	arg := strings.TrimSuffix(string(b[1:]), "/")
	if cmd == Remove {
		msg = Message{Cmd: cmd, Arg: arg}
		ok = true
	}
	return
}

// Unlink deletes the pipe from the filesystem (used on shutdown).
func Unlink(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Send is the client side of the protocol (spec.md §6 "-r <path>"): it
// opens the pipe at path for writing, sends a Remove request for arg, and
// closes its end so the daemon's ReadMessage call unblocks.
func Send(path, arg string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append([]byte{byte(Remove)}, arg...))
	return err
}
