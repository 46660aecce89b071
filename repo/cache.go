package repo

import (
	"path"
	"strings"
)

// CachedName derives the local cache filename for a repository resource,
// mirroring distri's ParseVersion idiom of splitting a filename on a
// recognized marker and reattaching the repository identity instead of
// discarding it: "<reponame>-<basename>" keeps packages from differently
// named repositories that happen to share a basename from colliding in a
// shared download cache, per §4.6's "cached_name" operation.
func CachedName(repoName, remotePath string) string {
	base := path.Base(remotePath)
	if base == "." || base == "/" || base == "" {
		base = strings.ReplaceAll(remotePath, "/", "_")
	}
	return repoName + "-" + base
}
