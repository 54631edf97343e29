package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]string{"-d", "-u", "1000", "-g", "1000"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.MountRoot != DefaultMountRoot || c.PidFile != DefaultPidFile {
		t.Fatalf("expected compiled defaults, got %+v", c)
	}
	if c.UID != 1000 || c.GID != 1000 {
		t.Fatalf("expected uid/gid 1000, got %d/%d", c.UID, c.GID)
	}
	if c.HookTimeout <= 0 {
		t.Fatal("expected a nonzero default hook timeout")
	}
}

func TestParseMissingUIDGIDFails(t *testing.T) {
	_, err := Parse([]string{"-d"})
	if err != ErrMissingUIDGID {
		t.Fatalf("expected ErrMissingUIDGID, got %v", err)
	}
}

func TestParseRemoveModeSkipsUIDGIDRequirement(t *testing.T) {
	c, err := Parse([]string{"-r", "/mnt/PHOTOS"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Remove != "/mnt/PHOTOS" {
		t.Fatalf("expected Remove to be set, got %q", c.Remove)
	}
}

func TestParseHelpSkipsUIDGIDRequirement(t *testing.T) {
	c, err := Parse([]string{"-h"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !c.Help {
		t.Fatal("expected Help to be true")
	}
}

func TestConfigFileOverlayAppliesBeforeFlags(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ldm.conf")
	body := `[global]
mount-root = /media
registry-capacity = 5
hook-path = /usr/local/bin/ldm-hook
hook-timeout = 30
global-hook = /usr/local/bin/ldm-notify
`
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := Parse([]string{"-d", "-u", "1000", "-g", "1000", "-c", cfgPath})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.MountRoot != "/media" {
		t.Fatalf("expected overlay mount root /media, got %q", c.MountRoot)
	}
	if c.RegistryCapacity != 5 {
		t.Fatalf("expected overlay registry capacity 5, got %d", c.RegistryCapacity)
	}
	if c.HookPath != "/usr/local/bin/ldm-hook" {
		t.Fatalf("expected overlay hook path, got %q", c.HookPath)
	}
	if c.HookTimeout != 30*time.Second {
		t.Fatalf("expected overlay hook timeout 30s, got %v", c.HookTimeout)
	}
	if c.GlobalHookPath != "/usr/local/bin/ldm-notify" {
		t.Fatalf("expected overlay global hook path, got %q", c.GlobalHookPath)
	}
}

func TestParseCLIUIDGIDApplied(t *testing.T) {
	c, err := Parse([]string{"-d", "-u", "2000", "-g", "2001"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.UID != 2000 || c.GID != 2001 {
		t.Fatalf("expected CLI uid/gid 2000/2001, got %d/%d", c.UID, c.GID)
	}
}
