package device

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultLibraryDirs are searched after LD_LIBRARY_PATH.
var DefaultLibraryDirs = []string{
	"/usr/local/lib",
	"/usr/lib",
	"/usr/lib64",
	"/usr/lib/x86_64-linux-gnu",
	"/usr/lib/aarch64-linux-gnu",
	"/opt/intel/openvino/runtime/lib/intel64",
	"/usr/local/cuda/lib64",
}

// LibraryDirs returns LD_LIBRARY_PATH entries followed by the defaults.
func LibraryDirs() []string {
	var dirs []string
	for _, d := range strings.Split(os.Getenv("LD_LIBRARY_PATH"), string(os.PathListSeparator)) {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}
	return append(dirs, DefaultLibraryDirs...)
}

// FindLibrary returns the first file in dirs whose name matches one of the
// glob patterns (e.g. "libarmnn.so*").
func FindLibrary(dirs []string, patterns ...string) (string, bool) {
	for _, dir := range dirs {
		for _, p := range patterns {
			matches, err := filepath.Glob(filepath.Join(dir, p))
			if err != nil {
				continue
			}
			for _, m := range matches {
				if fi, err := os.Stat(m); err == nil && !fi.IsDir() {
					return m, true
				}
			}
		}
	}
	return "", false
}
