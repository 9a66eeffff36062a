//go:build !unix

package fsutil

// RemoveAllAvoidsSymlinkAttacks is false where os.RemoveAll falls back to
// path-based removal, which can race with symlink replacement.
var RemoveAllAvoidsSymlinkAttacks = false
