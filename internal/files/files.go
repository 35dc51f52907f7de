// Package files implements small file system helpers shared by hub and the commands.
package files

import (
	"os"
	"path/filepath"
	"strings"
)

// Exists returns true if the path exists (file or directory).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir returns true if path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ReplaceTildeInDir replaces a leading "~" by the user's home directory.
// It returns dir unchanged if there is no "~" prefix, or the home directory can't be resolved.
func ReplaceTildeInDir(dir string) string {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dir
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~"))
}

// EnsureParentDir creates the directory of filePath, if missing, so that the file can be created.
func EnsureParentDir(filePath string, perm os.FileMode) error {
	dir := filepath.Dir(filePath)
	if dir == "." || IsDir(dir) {
		return nil
	}
	return os.MkdirAll(dir, perm)
}
