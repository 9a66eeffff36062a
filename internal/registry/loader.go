package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"inferd/internal/common/fsutil"
	"inferd/internal/store"
	"inferd/pkg/types"
)

// CacheScanner lists models already present in a cache root.
type CacheScanner struct{}

// NewCacheScanner returns a scanner for the <root>/<family>/<identity> layout.
func NewCacheScanner() *CacheScanner { return &CacheScanner{} }

// Scan walks every family directory under root. A directory holding at least
// one regular file is a model location; its path below the family directory
// is the identity, so "owner/name" identities come back intact.
func (s *CacheScanner) Scan(root string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(root)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, fam := range types.Families() {
		famDir := filepath.Join(abs, string(fam))
		if !fsutil.PathExists(famDir) {
			continue
		}
		err := filepath.WalkDir(famDir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				// unreadable subtrees are skipped, not fatal
				if d != nil && d.IsDir() && p != famDir {
					return fs.SkipDir
				}
				return nil
			}
			if !d.IsDir() || p == famDir {
				return nil
			}
			if !hasRegularFile(p) {
				return nil
			}
			rel, err := filepath.Rel(famDir, p)
			if err != nil {
				return err
			}
			models = append(models, types.Model{
				Name:      filepath.ToSlash(rel),
				Family:    fam,
				Path:      p,
				SizeBytes: store.Size(p),
			})
			return fs.SkipDir
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", famDir, err)
		}
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].Family != models[j].Family {
			return models[i].Family < models[j].Family
		}
		return models[i].Name < models[j].Name
	})
	return models, nil
}

func hasRegularFile(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			return true
		}
	}
	return false
}

// ScanCache is a convenience wrapper around CacheScanner.Scan.
func ScanCache(root string) ([]types.Model, error) {
	return NewCacheScanner().Scan(root)
}
