package frontmatter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalOrderAndQuoting(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	out, err := Marshal([]Field{
		{Key: "id", Value: "123", Quote: true},
		{Key: "title", Value: "Hello: World"},
		{Key: "slug", Value: "hello-world"},
		{Key: "createdAt", Value: created},
		{Key: "tags", Value: []string{"go", "2024"}},
		{Key: "views", Value: 42},
	}, "# Heading\n\nBody text.\n")
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "---\nid: \"123\"\ntitle: 'Hello: World'\nslug: hello-world\n"), text)
	assert.Contains(t, text, "createdAt: 2024-05-01T10:30:00Z\n")
	assert.Contains(t, text, `tags: [go, "2024"]`)
	assert.Contains(t, text, "views: 42\n")
	assert.True(t, strings.HasSuffix(text, "---\n\n# Heading\n\nBody text.\n"))
}

func TestParseRoundTrip(t *testing.T) {
	out, err := Marshal([]Field{
		{Key: "id", Value: "0042", Quote: true},
		{Key: "title", Value: "true"},
		{Key: "createdAt", Value: time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)},
		{Key: "gallery", Value: []string{"/a.png", "/b.png"}},
		{Key: "custom", Value: map[string]any{"nested": []any{"x", 1}}},
	}, "body")
	require.NoError(t, err)

	meta, body, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "body", body)
	assert.Equal(t, "0042", meta["id"])
	assert.Equal(t, "true", meta["title"])
	ts, ok := ParseTime(meta["createdAt"])
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC), ts)
	assert.Equal(t, []string{"/a.png", "/b.png"}, Strings(meta["gallery"]))
	assert.Equal(t, map[string]any{"nested": []any{"x", 1}}, meta["custom"])
}

func TestParseWithoutHeader(t *testing.T) {
	meta, body, err := Parse([]byte("just markdown\n"))
	require.NoError(t, err)
	assert.Empty(t, meta)
	assert.Equal(t, "just markdown\n", body)
}

func TestParseRejectsBrokenYAML(t *testing.T) {
	_, _, err := Parse([]byte("---\ntitle: [unclosed\n---\nbody"))
	assert.Error(t, err)
}

func TestStringsCoercion(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Strings("a, b"))
	assert.Equal(t, []string{"1", "x"}, Strings([]any{1, "x"}))
	assert.Nil(t, Strings(nil))
}
