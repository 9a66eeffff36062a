//go:build unix

package fsutil

// RemoveAllAvoidsSymlinkAttacks reports whether os.RemoveAll on this platform
// walks the tree relative to open directory handles (openat/unlinkat) so a
// symlink swapped in mid-walk is unlinked rather than followed.
var RemoveAllAvoidsSymlinkAttacks = true
