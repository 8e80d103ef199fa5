package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestProbeReportsVersions(t *testing.T) {
	binDir := t.TempDir()
	versioned := writeStub(t, binDir, "versioned",
		"#!/bin/sh\necho 'ffmpeg version 7.1 Copyright (c) 2000-2024'\n")
	broken := writeStub(t, binDir, "broken", "#!/bin/sh\nexit 3\n")

	reqs := []Requirement{
		{Name: "Versioned", Command: versioned},
		{Name: "Broken", Command: broken},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: ""},
	}

	results := Probe(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "ffmpeg version 7.1 Copyright (c) 2000-2024" {
		t.Fatalf("versioned binary: %#v", results[0])
	}
	if !results[1].Available || results[1].Detail == "" {
		t.Fatalf("broken binary should be available with a probe failure: %#v", results[1])
	}
	if results[2].Available || results[2].Detail == "" {
		t.Fatalf("missing binary: %#v", results[2])
	}
	if results[3].Available || results[3].Detail != "command not configured" {
		t.Fatalf("unset command: %#v", results[3])
	}
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := writeStub(t, binDir, "present", "#!/bin/sh\nexit 0\n")

	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("present binary: %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("missing binary: %#v", results[1])
	}
}
