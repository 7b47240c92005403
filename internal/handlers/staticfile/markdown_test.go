package staticfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownToHTML(t *testing.T) {
	src := "# Hi\n\n" +
		"## Hi\n\n" +
		"## What's *new*?\n\n" +
		"Visit https://example.com today.\n\n" +
		"| a | b |\n|---|---|\n| 1 | 2 |\n\n" +
		"~~gone~~\n\n" +
		"- [x] done\n- [ ] todo\n\n" +
		"```go\nfmt.Println(1)\n```\n"

	out, err := markdownToHTML([]byte(src))
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, `<h1 id="user-content-hi">Hi</h1>`)
	assert.Contains(t, html, `<h2 id="user-content-hi-1">Hi</h2>`)
	assert.Contains(t, html, `id="user-content-whats-new"`)
	assert.Contains(t, html, `<a href="https://example.com">https://example.com</a>`)
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<del>gone</del>")
	assert.Contains(t, html, `type="checkbox"`)
	assert.Contains(t, html, `<code class="language-go">`)
}

func TestMarkdownToHTML_NotUTF8(t *testing.T) {
	_, err := markdownToHTML([]byte("# \xff\xfe"))
	assert.ErrorIs(t, err, errMarkdownNotUTF8)
}

func TestMarkdownToHTML_RawHTMLOmitted(t *testing.T) {
	out, err := markdownToHTML([]byte("<script>alert(1)</script>\n"))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<script>")
}

func TestPrefixedIDs(t *testing.T) {
	ids := newPrefixedIDs()
	ids.Put([]byte("user-content-taken"))
	assert.Equal(t, "user-content-taken-1", string(ids.Generate([]byte("Taken"), 0)))
	assert.Equal(t, "user-content-heading", string(ids.Generate([]byte("!!!"), 0)))
	assert.Equal(t, "user-content-a-b_c", string(ids.Generate([]byte("A b_c"), 0)))
}
