package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name inside a config directory.
const ChecksumFile = ".checksums"

// ErrNoChecksums is returned by LoadChecksums when the directory has no manifest.
var ErrNoChecksums = errors.New("checksums manifest not found")

// ChecksumManifest records the BLAKE3 hash of each locked config file,
// keyed by base name.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// HashUpdateFileResult captures checksum generation outcome for one file.
type HashUpdateFileResult struct {
	Filename string
	Path     string
	Exists   bool
	Hash     string
}

// HashUpdateReport captures checksum generation details for a config directory.
type HashUpdateReport struct {
	ConfigDir    string
	ChecksumPath string
	Written      bool
	Files        []HashUpdateFileResult
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actual, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s", filepath.Base(filePath), expectedHash, actual)
	}
	return nil
}

// Lock hashes the lockable files in configDir and writes the manifest.
// When dryRun is true the report is computed without writing anything.
func Lock(configDir string, dryRun bool) (*HashUpdateReport, error) {
	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string),
	}
	report := &HashUpdateReport{
		ConfigDir:    configDir,
		ChecksumPath: filepath.Join(configDir, ChecksumFile),
		Files:        make([]HashUpdateFileResult, 0, len(lockedFiles)),
	}

	for _, name := range lockedFiles {
		path := filepath.Join(configDir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			report.Files = append(report.Files, HashUpdateFileResult{Filename: name, Path: path})
			continue
		}

		sum, err := ComputeBlake3Hash(path)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", name, err)
		}
		manifest.Hashes[name] = sum
		report.Files = append(report.Files, HashUpdateFileResult{Filename: name, Path: path, Exists: true, Hash: sum})
	}

	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	if err := os.WriteFile(report.ChecksumPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}

// LoadChecksums reads the manifest from a config directory.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoChecksums
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// verifyIntegrity checks the files a config was loaded from against the
// manifest in configDir. Without a manifest, config.yaml alone is accepted
// but a tokens file is refused: bearer tokens are only trusted once locked.
func verifyIntegrity(configDir string, files []string) error {
	manifest, err := LoadChecksums(configDir)
	if errors.Is(err, ErrNoChecksums) {
		for _, f := range files {
			if filepath.Base(f) == TokensFile {
				return fmt.Errorf("%s present in %s without a %s manifest\nRun: holdline config lock --config-dir %s", TokensFile, configDir, ChecksumFile, configDir)
			}
		}
		return nil
	}
	if err != nil {
		return err
	}

	for _, path := range files {
		name := filepath.Base(path)
		expected, ok := manifest.Hashes[name]
		if !ok {
			return fmt.Errorf("config file %s has no hash in %s\nRun: holdline config lock --config-dir %s", name, ChecksumFile, configDir)
		}
		if err := VerifyFileHash(path, expected); err != nil {
			return fmt.Errorf("config verification failed for %s: %w\n"+
				"If you edited this file intentionally, run: holdline config lock --config-dir %s", path, err, configDir)
		}
	}
	return nil
}
