package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileExists checks to see if a path exists and is a file
func FileExists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}

// DirExists checks to see if a path exists and is a directory
func DirExists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.IsDir()
}

// CleanJoin joins elem onto prefix and makes sure the result stays inside of
// prefix, this is to control for path traversal
func CleanJoin(prefix string, elem string) (string, error) {
	prefix = filepath.Clean(prefix)
	destPath := filepath.Join(prefix, elem)

	rel, err := filepath.Rel(prefix, destPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal file path: %s", elem)
	}

	return destPath, nil
}
