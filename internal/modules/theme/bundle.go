package theme

import (
	"embed"
	"io/fs"
)

//go:embed all:bundled
var bundled embed.FS

// Bundled returns the themes shipped with the binary, one directory per theme.
func Bundled() fs.FS {
	sub, err := fs.Sub(bundled, "bundled")
	if err != nil {
		panic(err)
	}
	return sub
}
