package unitgraph

import "os"

// pathExists reports whether a regular file exists at path.
func pathExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
