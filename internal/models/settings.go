package models

// Settings is the singleton site configuration persisted in settings.json.
type Settings struct {
	SiteTitle               string `json:"siteTitle"`
	SiteDescription         string `json:"siteDescription"`
	SiteURL                 string `json:"siteUrl"`
	SiteLogo                string `json:"siteLogo,omitempty"`
	SiteIcon                string `json:"siteIcon,omitempty"`
	ActiveTheme             string `json:"activeTheme"`
	PostsPerPage            int    `json:"postsPerPage"`
	EnableComments          bool   `json:"enableComments"`
	EnableCaching           bool   `json:"enableCaching"`
	CacheDuration           int    `json:"cacheDuration"`
	CommentModeration       bool   `json:"commentModeration"`
	StaticOutputDir         string `json:"staticOutputDir"`
	StaticCleanURLs         bool   `json:"staticCleanUrls"`
	StaticBaseURL           string `json:"staticBaseUrl"`
	StaticIncludeTaxonomies bool   `json:"staticIncludeTaxonomies"`
	StaticMinifyAssets      bool   `json:"staticMinifyAssets"`
}

// DefaultSettings is written on first start.
func DefaultSettings() Settings {
	return Settings{
		SiteTitle:               "My Folio Site",
		SiteDescription:         "A site powered by Folio",
		SiteURL:                 "http://localhost:8080",
		ActiveTheme:             "default",
		PostsPerPage:            10,
		CacheDuration:           300,
		CommentModeration:       true,
		StaticOutputDir:         "static",
		StaticCleanURLs:         true,
		StaticIncludeTaxonomies: true,
	}
}
