// Package frontmatter reads and writes markdown files with a YAML header.
package frontmatter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	adrg "github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"
)

const delimiter = "---"

var yamlFormat = adrg.NewFormat(delimiter, delimiter, yaml.Unmarshal)

var numericLike = regexp.MustCompile(`^[-+]?(\d[\d_]*)?(\.\d+)?([eE][-+]?\d+)?$`)

// Field is one ordered frontmatter entry.
type Field struct {
	Key   string
	Value any
	// Quote forces double quotes on string values.
	Quote bool
}

// Parse splits data into the decoded header and the markdown body.
// Files without a header yield an empty map and the whole input as body.
func Parse(data []byte) (map[string]any, string, error) {
	meta := map[string]any{}
	rest, err := adrg.Parse(bytes.NewReader(data), &meta, yamlFormat)
	if err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return meta, strings.TrimLeft(string(rest), "\r\n"), nil
}

// Marshal renders fields in order followed by the body.
func Marshal(fields []Field, body string) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range fields {
		val, err := valueNode(f.Value, f.Quote)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Key, err)
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key},
			val,
		)
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	if len(doc.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	}
	buf.WriteString(delimiter + "\n\n")
	buf.WriteString(strings.TrimLeft(body, "\r\n"))
	return buf.Bytes(), nil
}

func valueNode(v any, quote bool) (*yaml.Node, error) {
	switch val := v.(type) {
	case string:
		return stringNode(val, quote), nil
	case time.Time:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!timestamp", Value: FormatTime(val)}, nil
	case *time.Time:
		if val == nil {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
		}
		return valueNode(*val, quote)
	case []string:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, s := range val {
			seq.Content = append(seq.Content, stringNode(s, quote))
		}
		return seq, nil
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		scalars := true
		for _, item := range val {
			n, err := valueNode(item, false)
			if err != nil {
				return nil, err
			}
			if n.Kind != yaml.ScalarNode {
				scalars = false
			}
			seq.Content = append(seq.Content, n)
		}
		if scalars {
			seq.Style = yaml.FlowStyle
		}
		return seq, nil
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}

func stringNode(s string, quote bool) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if quote || (s != "" && numericLike.MatchString(s)) {
		n.Style = yaml.DoubleQuotedStyle
	}
	return n
}

// FormatTime renders t as the canonical RFC 3339 UTC timestamp.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts the timestamp shapes found in hand-written frontmatter.
func ParseTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// String coerces scalar values to string; numbers keep their literal form.
func String(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return FormatTime(val)
	default:
		return fmt.Sprint(val)
	}
}

// Strings coerces a YAML sequence (or a lone scalar) into a string slice.
func Strings(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := String(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return []string{String(v)}
}
