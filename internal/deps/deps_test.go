package deps_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"subguard/internal/config"
	"subguard/internal/deps"
	"subguard/internal/testsupport"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	testsupport.WriteScript(t, present, "echo 'present version 1.2'")
	reqs := []deps.Requirement{
		{Name: "Present", Command: present, VersionArgs: []string{"-version"}},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  ", Optional: true},
	}

	results := deps.CheckBinaries(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Version != "present version 1.2" {
		t.Fatalf("unexpected version %q", results[0].Version)
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unset command: %q", results[2].Detail)
	}

	missing := deps.MissingRequired(results)
	if len(missing) != 1 || missing[0] != "Missing" {
		t.Fatalf("MissingRequired = %v", missing)
	}
}

func TestForConfigIncludesCommandEngines(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithEngine(config.Engine{Name: "vision", Kind: "command", Command: "vision-detect", Weight: 0.3}),
		testsupport.WithEngine(config.Engine{Name: "ocr", Kind: "ocr-tracker", Weight: 0.35}),
	)

	reqs := deps.ForConfig(cfg)
	var names []string
	for _, r := range reqs {
		names = append(names, r.Name)
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "FFmpeg") || !strings.Contains(joined, "FFprobe") {
		t.Fatalf("missing ffmpeg tools: %s", joined)
	}
	if !strings.Contains(joined, "engine vision") {
		t.Fatalf("missing command engine: %s", joined)
	}
	if strings.Contains(joined, "engine ocr") {
		t.Fatalf("ocr-tracker engine has no binary to check: %s", joined)
	}
}
