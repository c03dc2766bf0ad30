package mirror

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const indexFile = "index.html"

// LocalPath maps a canonical URL to the file it is stored in below
// root. Extensionless paths are treated as directories and stored as
// their index.html. The query string is not part of the mapping, so
// URLs that only differ in their query share a file.
func LocalPath(u *url.URL, root string) string {
	p := u.Path
	isDir := p == "" || strings.HasSuffix(p, "/") || !strings.Contains(path.Base(p), ".")

	// Cleaning an absolute path drops any ".." that would climb
	// above the host directory.
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if isDir || p == "" {
		p = path.Join(p, indexFile)
	}
	return filepath.Join(root, u.Host, filepath.FromSlash(p))
}
