package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLog(t *testing.T, size int) (string, string) {
	t.Helper()
	var sb strings.Builder
	for i := 0; sb.Len() < size; i++ {
		fmt.Fprintf(&sb, "time=2026-01-02T15:04:05Z level=DEBUG msg=\"resolved call\" request=%d\n", i)
	}
	path := filepath.Join(t.TempDir(), "callctx.log")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}
	return path, sb.String()
}

func TestRotateLogFile(t *testing.T) {
	// 1.1 MB against a 1 MB limit
	path, original := writeLog(t, 1024*1024+100*1024)

	rotateLogFile(path, 1)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	rotated := string(data)

	minDelete := len(original) / 10
	if len(rotated) > len(original)-minDelete {
		t.Errorf("Log did not shrink enough: %d bytes left of %d", len(rotated), len(original))
	}
	if !strings.HasPrefix(rotated, "time=") {
		t.Errorf("Rotated log starts mid-line: %q", rotated[:40])
	}
	if !strings.HasSuffix(original, rotated) {
		t.Errorf("Rotated log is not a suffix of the original")
	}
}

func TestRotateLogFile_UnderLimit(t *testing.T) {
	path, original := writeLog(t, 4*1024)

	rotateLogFile(path, 1)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	if string(data) != original {
		t.Errorf("Log under the limit was modified")
	}
}

func TestRotateLogFile_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.log")
	rotateLogFile(path, 1)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("rotateLogFile created %s", path)
	}
}
