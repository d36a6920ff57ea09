package theme

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/folio-cms/folio/internal/models"
	"github.com/folio-cms/folio/internal/pkg/apperr"
	"github.com/folio-cms/folio/internal/pkg/slug"
)

// ManifestFile is the theme descriptor at the root of every theme.
const ManifestFile = "theme.json"

// RequiredLicense is the only license accepted for installable themes.
const RequiredLicense = "GPL-3.0-or-later"

var (
	versionPattern  = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	screenshotExts  = map[string]bool{"jpg": true, "jpeg": true, "png": true, "webp": true, "avif": true, "svg": true}
	requiredStrings = []string{"title", "description", "version", "author", "authorUrl", "license", "screenshot"}
	requiredLists   = []string{"tags", "features"}
)

// ParseManifest decodes and validates theme.json. Every violated rule is
// reported under its field name.
func ParseManifest(data []byte) (models.ThemeManifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.ThemeManifest{}, apperr.InvalidPackage("theme.json is not valid JSON",
			map[string]string{"theme.json": err.Error()})
	}

	errs := apperr.FieldErrors{}
	for _, key := range requiredStrings {
		var s string
		if v, ok := raw[key]; !ok {
			errs.Add(key, key+" is required")
		} else if err := json.Unmarshal(v, &s); err != nil {
			errs.Add(key, key+" must be a string")
		} else if strings.TrimSpace(s) == "" {
			errs.Add(key, key+" is required")
		}
	}
	for _, key := range requiredLists {
		var list []string
		if v, ok := raw[key]; !ok {
			errs.Add(key, key+" is required")
		} else if err := json.Unmarshal(v, &list); err != nil || list == nil {
			errs.Add(key, key+" must be an array of strings")
		}
	}

	var m models.ThemeManifest
	if err := json.Unmarshal(data, &m); err != nil {
		// Type errors are already reported per field above.
		m = models.ThemeManifest{}
		for k, v := range raw {
			partial, _ := json.Marshal(map[string]json.RawMessage{k: v})
			_ = json.Unmarshal(partial, &m)
		}
	}
	validate(m, errs)
	if len(errs) > 0 {
		return m, apperr.InvalidPackage("invalid theme manifest: "+strings.Join(fieldNames(errs), ", "), errs)
	}
	return m, nil
}

func validate(m models.ThemeManifest, errs apperr.FieldErrors) {
	if m.Version != "" && !versionPattern.MatchString(m.Version) {
		errs.Add("version", "version must look like 1.2.3")
	}
	if m.License != "" && m.License != RequiredLicense {
		errs.Add("license", fmt.Sprintf("license must be %s, got %s", RequiredLicense, m.License))
	}
	if m.AuthorURL != "" {
		u, err := url.Parse(m.AuthorURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			errs.Add("authorUrl", "authorUrl must be an https:// URL")
		}
	}
	if m.Screenshot != "" {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(m.Screenshot), "."))
		if !screenshotExts[ext] {
			errs.Add("screenshot", "screenshot must be a jpg, jpeg, png, webp, avif or svg file")
		}
	}
	if m.Name != "" && !slug.Valid(m.Name) {
		errs.Add("name", "name must contain lowercase letters, digits and hyphens")
	}
	if m.Index != "" && (strings.Contains(m.Index, "/") || strings.Contains(m.Index, "\\") || path.Ext(m.Index) != ".html") {
		errs.Add("index", "index must name an .html file inside templates/")
	}
	for i, c := range m.Colors {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Value) == "" {
			errs.Add("colors", fmt.Sprintf("colors[%d] needs a name and a value", i))
		}
	}
}

func fieldNames(errs apperr.FieldErrors) []string {
	names := make([]string, 0, len(errs))
	for k := range errs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// CompareVersions compares dotted numeric versions: -1, 0 or 1.
func CompareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var x, y int
		if i < len(pa) {
			x, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			y, _ = strconv.Atoi(pb[i])
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}
