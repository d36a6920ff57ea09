package static

import (
	"fmt"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// minify shrinks CSS and JS assets; other files pass through.
func minify(rel string, data []byte) ([]byte, error) {
	var loader api.Loader
	switch strings.ToLower(path.Ext(rel)) {
	case ".css":
		loader = api.LoaderCSS
	case ".js", ".mjs":
		loader = api.LoaderJS
	default:
		return data, nil
	}
	result := api.Transform(string(data), api.TransformOptions{
		Loader:            loader,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Sourcefile:        rel,
		Charset:           api.CharsetUTF8,
	})
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("minify %s: %s", rel, result.Errors[0].Text)
	}
	return result.Code, nil
}
