package hook

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInvokerNoopWhenPathEmpty(t *testing.T) {
	inv := Invoker{}
	if err := inv.Run(Mount, "/mnt/PHOTOS"); err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return p
}

func TestInvokerRunsArgv(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "out")
	script := writeScript(t, dir, "hook.sh", `echo "$1 $2" > `+marker+`
exit 0
`)
	inv := Invoker{Path: script}
	if err := inv.Run(Mount, "/mnt/PHOTOS"); err != nil {
		t.Fatalf("run: %v", err)
	}
	got, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if string(got) != "mount /mnt/PHOTOS\n" {
		t.Fatalf("unexpected argv record: %q", got)
	}
}

func TestInvokerNonzeroExitIsError(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "hook.sh", "exit 1\n")
	inv := Invoker{Path: script}
	if err := inv.Run(Unmount, "/mnt/PHOTOS"); err == nil {
		t.Fatal("expected nonzero exit to be reported as an error")
	}
}

func TestInvokerTimeout(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "hook.sh", "sleep 5\n")
	inv := Invoker{Path: script, Timeout: 50 * time.Millisecond}
	start := time.Now()
	if err := inv.Run(Mount, "/mnt/PHOTOS"); err == nil {
		t.Fatal("expected timeout to be reported as an error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("invoker did not honor the timeout")
	}
}
