// Package fstab parses the two authoritative mount-configuration tables — the
// administrator-maintained /etc/fstab and the kernel-live /proc/self/mounts —
// and resolves a device against either one (spec.md §4.1).
package fstab

import (
	"bufio"
	"io"
	"strings"
)

// Entry is one line of a parsed table.
type Entry struct {
	Source  string // device spec: a devnode, "UUID=...", "LABEL=...", or an alias
	Target  string // mountpoint
	FSType  string
	Options string // raw, comma-separated
}

// HasOption reports whether e's option string carries option. Option syntax
// is comma-separated; a leading '+' on a table entry's option asserts
// presence the same as the bare name (spec.md §4.1).
func (e Entry) HasOption(option string) bool {
	for _, f := range strings.Split(e.Options, ",") {
		f = strings.TrimSpace(f)
		if f == option || f == "+"+option {
			return true
		}
	}
	return false
}

// Table is a parsed, immutable snapshot of a mount table. Tables are never
// mutated in place; Reload builds a fresh one and swaps it in.
type Table struct {
	entries []Entry
}

// Parse reads r as an fstab/mounts-formatted table.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		flds := strings.Fields(line)
		if len(flds) < 4 {
			continue
		}
		t.entries = append(t.entries, Entry{
			Source:  unescape(flds[0]),
			Target:  unescape(flds[1]),
			FSType:  unescape(flds[2]),
			Options: unescape(flds[3]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Entries returns the table's parsed lines.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	return t.entries
}

// unescape decodes the octal escapes (\040 for space, \011 tab, \012
// newline, \134 backslash) that both fstab and /proc/self/mounts use to
// encode whitespace embedded in a field.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			switch s[i+1 : i+4] {
			case "040":
				b.WriteByte(' ')
				i += 3
				continue
			case "011":
				b.WriteByte('\t')
				i += 3
				continue
			case "012":
				b.WriteByte('\n')
				i += 3
				continue
			case "134":
				b.WriteByte('\\')
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
