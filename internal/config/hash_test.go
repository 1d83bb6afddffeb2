package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLockDryRun(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, ConfigFile, "worker:\n  command: x\n")

	report, err := Lock(tmpDir, true)
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if report.Written {
		t.Fatal("report.Written = true, want false in dry-run")
	}
	if len(report.Files) != 2 {
		t.Fatalf("len(report.Files) = %d, want 2", len(report.Files))
	}
	if !report.Files[0].Exists || report.Files[0].Hash == "" {
		t.Fatal("config.yaml should exist with computed hash")
	}
	if report.Files[1].Exists || report.Files[1].Hash != "" {
		t.Fatal("tokens.yaml should be reported as missing without hash")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ChecksumFile)); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written in dry-run mode")
	}
}

func TestLockWritesManifest(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, ConfigFile, "worker:\n  command: x\n")
	writeFile(t, tmpDir, TokensFile, "tokens: []\n")

	report, err := Lock(tmpDir, false)
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if !report.Written {
		t.Fatal("report.Written = false, want true")
	}

	manifest, err := LoadChecksums(tmpDir)
	if err != nil {
		t.Fatalf("LoadChecksums() failed: %v", err)
	}
	if len(manifest.Hashes) != 2 {
		t.Fatalf("len(manifest.Hashes) = %d, want 2", len(manifest.Hashes))
	}
	if err := VerifyFileHash(filepath.Join(tmpDir, ConfigFile), manifest.Hashes[ConfigFile]); err != nil {
		t.Fatalf("VerifyFileHash() failed: %v", err)
	}
}

func TestLoadChecksumsMissing(t *testing.T) {
	_, err := LoadChecksums(t.TempDir())
	if !errors.Is(err, ErrNoChecksums) {
		t.Fatalf("expected ErrNoChecksums, got %v", err)
	}
}

func TestComputeBlake3HashIsStable(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "a.yaml", "same")
	other := writeFile(t, tmpDir, "b.yaml", "same")

	h1, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ComputeBlake3Hash(other)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 || len(h1) != 64 {
		t.Fatalf("hashes differ or wrong length: %s %s", h1, h2)
	}
	if err := VerifyFileHash(path, "deadbeef"); err == nil {
		t.Fatal("expected mismatch error")
	}
}
