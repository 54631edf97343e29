package fstab

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeIdent struct {
	devnode string
	aliases []string
	uuid    string
	label   string
}

func (f fakeIdent) Devnode() string   { return f.devnode }
func (f fakeIdent) Aliases() []string { return f.aliases }
func (f fakeIdent) UUID() string      { return f.uuid }
func (f fakeIdent) Label() string     { return f.label }

func TestParseBasic(t *testing.T) {
	const data = `
# comment
/dev/sdc1  /media/backup  ext4  defaults 0 0
UUID=1234-5678  /mnt/data  vfat  noauto,+uid 0 0
`
	tbl, err := Parse(strings.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tbl.Entries()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(tbl.Entries()))
	}
	if tbl.Entries()[0].Target != "/media/backup" {
		t.Errorf("unexpected target: %q", tbl.Entries()[0].Target)
	}
}

func TestParseEscapedWhitespace(t *testing.T) {
	const data = `/dev/sdb1 /mnt/My\040Disk vfat defaults 0 0`
	tbl, err := Parse(strings.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := tbl.Entries()[0].Target; got != "/mnt/My Disk" {
		t.Errorf("expected unescaped space, got %q", got)
	}
}

func TestHasOptionPlusPrefix(t *testing.T) {
	e := Entry{Options: "noauto,+owner"}
	if !e.HasOption("noauto") {
		t.Error("expected noauto present")
	}
	if !e.HasOption("owner") {
		t.Error("expected +owner to assert owner present")
	}
	if e.HasOption("ro") {
		t.Error("did not expect ro present")
	}
}

func writeTable(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestCacheFindResolutionOrder(t *testing.T) {
	dir := t.TempDir()
	admin := writeTable(t, dir, "fstab", strings.Join([]string{
		"/dev/sdc1  /media/backup  ext4  defaults 0 0",
		"UUID=AAAA  /mnt/byuuid  vfat  noauto 0 0",
		"LABEL=PHOTOS  /mnt/bylabel  vfat  noauto 0 0",
		"/dev/mapper/vg-lv  /mnt/lvm  ext4  noauto 0 0",
	}, "\n"))
	kernel := writeTable(t, dir, "mounts", "")
	c := NewCache(admin, kernel)
	if err := c.Reload(Admin); err != nil {
		t.Fatalf("reload admin: %v", err)
	}

	// direct devnode match wins
	e, ok := c.Find(Admin, fakeIdent{devnode: "/dev/sdc1"})
	if !ok || e.Target != "/media/backup" {
		t.Fatalf("expected direct devnode match, got %+v ok=%v", e, ok)
	}

	// UUID fallback when devnode doesn't match
	e, ok = c.Find(Admin, fakeIdent{devnode: "/dev/sdz9", uuid: "AAAA"})
	if !ok || e.Target != "/mnt/byuuid" {
		t.Fatalf("expected UUID match, got %+v ok=%v", e, ok)
	}

	// LABEL fallback when neither devnode nor UUID match
	e, ok = c.Find(Admin, fakeIdent{devnode: "/dev/sdz9", label: "PHOTOS"})
	if !ok || e.Target != "/mnt/bylabel" {
		t.Fatalf("expected LABEL match, got %+v ok=%v", e, ok)
	}

	// device-mapper devnode resolves via aliases, not the volatile dm-N node
	e, ok = c.Find(Admin, fakeIdent{devnode: "/dev/dm-3", aliases: []string{"/dev/mapper/vg-lv"}})
	if !ok || e.Target != "/mnt/lvm" {
		t.Fatalf("expected alias match for dm node, got %+v ok=%v", e, ok)
	}

	// no match at all
	_, ok = c.Find(Admin, fakeIdent{devnode: "/dev/sdx1"})
	if ok {
		t.Fatal("expected no match")
	}
}

func TestCacheReloadFailurePreservesPrevious(t *testing.T) {
	dir := t.TempDir()
	admin := writeTable(t, dir, "fstab", "/dev/sdc1  /media/backup  ext4  defaults 0 0")
	c := NewCache(admin, filepath.Join(dir, "mounts"))
	if err := c.Reload(Admin); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := os.Remove(admin); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := c.Reload(Admin); err == nil {
		t.Fatal("expected reload of missing file to fail")
	}
	// previous table is untouched
	e, ok := c.Find(Admin, fakeIdent{devnode: "/dev/sdc1"})
	if !ok || e.Target != "/media/backup" {
		t.Fatalf("expected stale table to survive failed reload, got %+v ok=%v", e, ok)
	}
}
