//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

const (
	nfsSuperMagic  = 0x6969
	cifsSuperMagic = 0xFF534D42
	smbSuperMagic  = 0x517B
	smb2SuperMagic = 0xFE534D42
)

func detectFilesystemType(path string) (string, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}

	switch uint64(stat.Type) {
	case nfsSuperMagic:
		return "nfs", nil
	case cifsSuperMagic:
		return "cifs", nil
	case smbSuperMagic:
		return "smbfs", nil
	case smb2SuperMagic:
		return "smb2", nil
	}
	return fmt.Sprintf("0x%x", uint64(stat.Type)), nil
}
