package static

import (
	"bytes"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// linkAttrs are rewritten on every element.
var linkAttrs = map[string]bool{"href": true, "src": true, "srcset": true, "action": true}

// passthroughPrefixes are never given an .html suffix.
var passthroughPrefixes = []string{"/assets/", "/content/uploads/"}

// Rewriter adjusts internal absolute links of exported pages.
type Rewriter struct {
	// Base is prefixed to internal links. Empty means root-relative.
	Base string
	// AppendHTML adds .html to content links when clean URLs are off.
	AppendHTML bool
}

// NewRewriter normalises baseURL: "" and "/" both mean root-relative.
func NewRewriter(baseURL string, cleanURLs bool) Rewriter {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return Rewriter{Base: base, AppendHTML: !cleanURLs}
}

// Noop reports whether Rewrite would return its input unchanged.
func (rw Rewriter) Noop() bool { return rw.Base == "" && !rw.AppendHTML }

// Rewrite returns doc with link attributes adjusted. Tokens without changes
// are copied byte for byte.
func (rw Rewriter) Rewrite(doc []byte) []byte {
	if rw.Noop() {
		return doc
	}
	z := html.NewTokenizer(bytes.NewReader(doc))
	var out bytes.Buffer
	out.Grow(len(doc) + len(doc)/16)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a malformed tail; either way everything read so far is written.
			out.Write(z.Raw())
			return out.Bytes()
		}
		raw := z.Raw()
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}
		// Raw is only valid until the next call, and Token reuses the buffer.
		raw = append([]byte(nil), raw...)
		tok := z.Token()
		changed := false
		for i, a := range tok.Attr {
			if a.Namespace != "" || !linkAttrs[a.Key] {
				continue
			}
			var v string
			if a.Key == "srcset" {
				v = rw.srcset(a.Val)
			} else {
				v = rw.link(a.Val)
			}
			if v != a.Val {
				tok.Attr[i].Val = v
				changed = true
			}
		}
		if !changed {
			out.Write(raw)
			continue
		}
		out.WriteString(tok.String())
	}
}

func (rw Rewriter) link(v string) string {
	if !strings.HasPrefix(v, "/") || strings.HasPrefix(v, "//") {
		return v
	}
	if rw.AppendHTML {
		v = withHTML(v)
	}
	return rw.Base + v
}

func (rw Rewriter) srcset(v string) string {
	parts := strings.Split(v, ",")
	for i, part := range parts {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		u := fields[0]
		if strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//") {
			fields[0] = rw.Base + u
		}
		lead := part[:len(part)-len(strings.TrimLeft(part, " \t\n"))]
		parts[i] = lead + strings.Join(fields, " ")
	}
	return strings.Join(parts, ",")
}

// withHTML maps a content path to its non-clean file name.
func withHTML(v string) string {
	rest := ""
	if i := strings.IndexAny(v, "?#"); i >= 0 {
		v, rest = v[:i], v[i:]
	}
	for _, p := range passthroughPrefixes {
		if strings.HasPrefix(v, p) {
			return v + rest
		}
	}
	switch {
	case v == "/":
		return "/index.html" + rest
	case path.Ext(v) != "":
		return v + rest
	}
	return strings.TrimRight(v, "/") + ".html" + rest
}

// uploadRef finds media references in rendered pages.
var uploadRef = regexp.MustCompile(`/content/uploads/([^"'\s()<>?#]+)`)

func mediaRefs(doc []byte) []string {
	var out []string
	for _, m := range uploadRef.FindAllSubmatch(doc, -1) {
		out = append(out, string(m[1]))
	}
	return out
}
