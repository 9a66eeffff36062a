// Package store is the filesystem-backed artifact cache. Every model lives in
// exactly one directory derived from its family and identity; a directory
// with at least one entry is considered cached.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"inferd/internal/common/fsutil"
	"inferd/pkg/types"
)

// Store roots all cache locations under a single directory.
type Store struct {
	Root string
}

// New returns a Store rooted at root after expanding a leading '~'.
func New(root string) (*Store, error) {
	expanded, err := fsutil.ExpandHome(root)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	return &Store{Root: abs}, nil
}

// Location returns <root>/<family>/<identity>. Identities such as
// "owner/name" nest one level deeper.
func (s *Store) Location(identity string, family types.Family) string {
	clean := filepath.Clean("/" + filepath.FromSlash(identity))
	return filepath.Join(s.Root, string(family), strings.TrimPrefix(clean, string(filepath.Separator)))
}

// IsCached reports whether location is a non-empty directory.
func IsCached(location string) bool {
	return fsutil.HasEntries(location)
}

// Size returns the total bytes of regular files under location.
func Size(location string) int64 {
	return fsutil.DirSize(location)
}

// Clear deletes everything at location and leaves an empty directory behind.
// It refuses to run when recursive removal on this platform could follow a
// symlink out of the target.
func Clear(location string, log zerolog.Logger) error {
	fi, err := os.Lstat(location)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", location).Msg("cache directory does not exist, nothing to clear")
		return mkdir(location)
	}
	if err != nil {
		return ErrCache(location, "stat", err)
	}
	if !fsutil.RemoveAllAvoidsSymlinkAttacks {
		return ErrCache(location, "recursive delete is not symlink-safe on this platform", nil)
	}
	if fi.IsDir() {
		if err := os.RemoveAll(location); err != nil {
			return ErrCache(location, "remove", err)
		}
		log.Info().Str("path", location).Msg("cleared cache directory")
	} else {
		log.Warn().Str("path", location).Msg("found file instead of directory at cache path, replacing it with a directory")
		if err := os.Remove(location); err != nil {
			return ErrCache(location, "remove", err)
		}
	}
	return mkdir(location)
}

func mkdir(location string) error {
	if err := os.MkdirAll(location, 0o755); err != nil {
		return ErrCache(location, "mkdir", err)
	}
	return nil
}
