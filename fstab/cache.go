package fstab

import (
	"os"
	"strings"
)

// ID distinguishes the two tables the engine watches.
type ID int

const (
	// Admin is the administrator-maintained table (/etc/fstab by default).
	Admin ID = iota
	// Kernel is the live kernel mount table (/proc/self/mounts by default).
	Kernel
)

func (id ID) String() string {
	if id == Admin {
		return "admin"
	}
	return "kernel"
}

// Identity is the subset of a device's kernel-reported identity that
// resolution needs. device.Handle satisfies it structurally.
type Identity interface {
	Devnode() string
	Aliases() []string
	UUID() string
	Label() string
}

// Cache owns the two parsed tables and reloads them wholesale on demand.
type Cache struct {
	paths  map[ID]string
	tables map[ID]*Table
}

// NewCache builds a Cache for the given table paths. Neither table is loaded
// until Reload is called.
func NewCache(adminPath, kernelPath string) *Cache {
	return &Cache{
		paths: map[ID]string{
			Admin:  adminPath,
			Kernel: kernelPath,
		},
		tables: map[ID]*Table{},
	}
}

// Reload fully discards and reparses the table named by id. A parse failure
// leaves the previous table in place and is returned to the caller, who
// decides whether to abort (spec.md §4.1: on startup, abort; inside the
// loop, abort on either table).
func (c *Cache) Reload(id ID) error {
	f, err := os.Open(c.paths[id])
	if err != nil {
		return err
	}
	defer f.Close()
	t, err := Parse(f)
	if err != nil {
		return err
	}
	c.tables[id] = t
	return nil
}

// Find resolves ident against the table named by id, in the order spec.md
// §4.1 specifies: direct devnode match (falling back to symlink aliases for
// device-mapper nodes, since those devnodes are volatile), then UUID=, then
// LABEL=.
func (c *Cache) Find(id ID, ident Identity) (Entry, bool) {
	t := c.tables[id]
	if t == nil {
		return Entry{}, false
	}

	devnode := ident.Devnode()
	if strings.HasPrefix(devnode, "/dev/dm-") {
		for _, alias := range ident.Aliases() {
			if e, ok := findSource(t, alias); ok {
				return e, true
			}
		}
	} else if e, ok := findSource(t, devnode); ok {
		return e, true
	}

	if uuid := ident.UUID(); uuid != "" {
		if e, ok := findSource(t, "UUID="+uuid); ok {
			return e, true
		}
	}
	if label := ident.Label(); label != "" {
		if e, ok := findSource(t, "LABEL="+label); ok {
			return e, true
		}
	}
	return Entry{}, false
}

// HasOption reports whether ident's resolved entry in table id carries
// option.
func (c *Cache) HasOption(id ID, ident Identity, option string) bool {
	e, ok := c.Find(id, ident)
	return ok && e.HasOption(option)
}

func findSource(t *Table, source string) (Entry, bool) {
	for _, e := range t.Entries() {
		if e.Source == source {
			return e, true
		}
	}
	return Entry{}, false
}
