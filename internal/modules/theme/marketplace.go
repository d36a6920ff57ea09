package theme

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/folio-cms/folio/internal/pkg/apperr"
)

// MarketplaceTheme is one catalog entry.
type MarketplaceTheme struct {
	Name             string   `json:"name"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Version          string   `json:"version"`
	Author           string   `json:"author"`
	Screenshot       string   `json:"screenshot,omitempty"`
	DownloadURL      string   `json:"downloadUrl,omitempty"`
	Changelog        []string `json:"changelog,omitempty"`
	Installed        bool     `json:"installed"`
	InstalledVersion string   `json:"installedVersion,omitempty"`
}

// UpdateInfo is the result of a marketplace update check.
type UpdateInfo struct {
	Name            string   `json:"name"`
	CurrentVersion  string   `json:"currentVersion"`
	LatestVersion   string   `json:"latestVersion"`
	Changelog       []string `json:"changelog"`
	UpdateAvailable bool     `json:"updateAvailable"`
}

// Marketplace is a remote theme catalog.
type Marketplace interface {
	Catalog(ctx context.Context) ([]MarketplaceTheme, error)
	Download(ctx context.Context, name string) (io.ReadCloser, error)
}

// HTTPMarketplace reads a JSON catalog at <base>/themes.json and downloads
// packages from each entry's downloadUrl (or <base>/themes/<name>.zip).
type HTTPMarketplace struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPMarketplace builds a client that refuses private and loopback targets.
func NewHTTPMarketplace(baseURL string, timeout time.Duration) (*HTTPMarketplace, error) {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return NewHTTPMarketplaceWithClient(baseURL, safeurl.Client(cfg).Client)
}

// NewHTTPMarketplaceWithClient uses client as is.
func NewHTTPMarketplaceWithClient(baseURL string, client *http.Client) (*HTTPMarketplace, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid marketplace url %q", baseURL)
	}
	return &HTTPMarketplace{base: u, client: client}, nil
}

func (m *HTTPMarketplace) get(ctx context.Context, ref string) (*http.Response, error) {
	target, err := m.base.Parse(ref)
	if err != nil {
		return nil, apperr.Validation("invalid marketplace reference", map[string]string{"name": ref})
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, apperr.Internal("build marketplace request", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, apperr.Internal("marketplace request failed", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, apperr.NotFound("marketplace resource %s not found", ref)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, apperr.Internal("marketplace request failed", fmt.Errorf("status %d for %s", resp.StatusCode, target))
	}
	return resp, nil
}

func (m *HTTPMarketplace) Catalog(ctx context.Context) ([]MarketplaceTheme, error) {
	resp, err := m.get(ctx, "themes.json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var catalog struct {
		Themes []MarketplaceTheme `json:"themes"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&catalog); err != nil {
		return nil, apperr.Internal("decode marketplace catalog", err)
	}
	return catalog.Themes, nil
}

func (m *HTTPMarketplace) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	ref := "themes/" + url.PathEscape(name) + ".zip"
	if catalog, err := m.Catalog(ctx); err == nil {
		for _, t := range catalog {
			if t.Name == name && t.DownloadURL != "" {
				ref = t.DownloadURL
			}
		}
	}
	resp, err := m.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
