package helpers

import "os"

// FileExists reports false for any stat error, including permission.
func FileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
