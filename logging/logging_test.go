package logging

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestDebugSuppressedBelowInfo(t *testing.T) {
	l := NewDiscard()
	var buf bytes.Buffer
	l.wtrs = []io.Writer{&buf}
	if err := l.Debugf("should not appear"); err != nil {
		t.Fatalf("debugf: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written at Debug below the Info floor, got %q", buf.String())
	}
}

func TestErrorfWritesFramedLine(t *testing.T) {
	l := NewDiscard()
	var buf bytes.Buffer
	l.wtrs = []io.Writer{&buf}
	if err := l.Errorf("mount %s failed: %v", "/dev/sdb1", "boom"); err != nil {
		t.Fatalf("errorf: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "mount /dev/sdb1 failed: boom") {
		t.Fatalf("expected message body in output, got %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatal("expected a single trailing newline")
	}
}

func TestSetLevelAllowsDebug(t *testing.T) {
	l := NewDiscard()
	l.SetLevel(Debug)
	var buf bytes.Buffer
	l.wtrs = []io.Writer{&buf}
	if err := l.Debugf("now visible"); err != nil {
		t.Fatalf("debugf: %v", err)
	}
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatal("expected debug message to appear once the floor is lowered")
	}
}
