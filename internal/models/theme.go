package models

// ThemeColor is a named palette entry declared by a theme.
type ThemeColor struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ThemeManifest is the parsed theme.json.
type ThemeManifest struct {
	Name        string       `json:"name,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Version     string       `json:"version"`
	Author      string       `json:"author"`
	AuthorURL   string       `json:"authorUrl"`
	Tags        []string     `json:"tags"`
	License     string       `json:"license"`
	Features    []string     `json:"features"`
	Screenshot  string       `json:"screenshot"`
	Colors      []ThemeColor `json:"colors,omitempty"`
	// Index optionally names the home template under templates/.
	Index string `json:"index,omitempty"`
}

// Theme is an installed theme directory. Paths use forward slashes.
type Theme struct {
	Name         string        `json:"name"`
	Manifest     ThemeManifest `json:"manifest"`
	Dir          string        `json:"dir"`
	TemplatesDir string        `json:"templatesDir"`
	PartialsDir  string        `json:"partialsDir"`
	AssetsDir    string        `json:"assetsDir"`
	CustomDir    string        `json:"customDir,omitempty"`
	Active       bool          `json:"active"`
}
