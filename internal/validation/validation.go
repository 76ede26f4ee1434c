// Package validation checks user-supplied paths and file modes.
package validation

import (
	"fmt"
	"os"
)

// IsValidDirectory checks that path exists and is a directory.
func IsValidDirectory(path string) error {
	if path == "" {
		return fmt.Errorf("directory path is empty")
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("path does not exist: %s", path)
	}
	if err != nil {
		return fmt.Errorf("error checking path %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	return nil
}

// IsValidFilePermissions rejects modes that give other users any access.
// Account balances are private; 0600 or 0640 is expected.
func IsValidFilePermissions(mode os.FileMode) error {
	if mode.Perm()&0007 != 0 {
		return fmt.Errorf("file permissions are too permissive: %s. Recommended 0600 or 0640", mode.Perm().String())
	}
	return nil
}
