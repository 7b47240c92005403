package staticfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"example.com/basichttpd/internal/logger"
)

const headingIDPrefix = "user-content-"

// errMarkdownNotUTF8 is the cause attached when a .md file is not UTF-8.
var errMarkdownNotUTF8 = errors.New("markdown is not UTF-8")

// markdown renders GitHub-flavoured markdown: autolinks, tables,
// strikethrough and task lists, with fenced code blocks tagged by language.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// prefixedIDs generates GitHub-style heading anchors. The prefix keeps
// user content from colliding with ids used by the page itself.
type prefixedIDs struct {
	seen map[string]struct{}
}

func newPrefixedIDs() *prefixedIDs {
	return &prefixedIDs{seen: make(map[string]struct{})}
}

func (ids *prefixedIDs) Generate(value []byte, kind ast.NodeKind) []byte {
	var sb strings.Builder
	for _, r := range strings.ToLower(string(value)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteByte('-')
		}
	}
	slug := sb.String()
	if slug == "" {
		slug = "heading"
	}
	id := slug
	for i := 1; ; i++ {
		if _, taken := ids.seen[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s-%d", slug, i)
	}
	ids.seen[id] = struct{}{}
	return []byte(headingIDPrefix + id)
}

func (ids *prefixedIDs) Put(value []byte) {
	ids.seen[strings.TrimPrefix(string(value), headingIDPrefix)] = struct{}{}
}

// markdownToHTML converts UTF-8 markdown source to an HTML fragment.
func markdownToHTML(src []byte) ([]byte, error) {
	if !utf8.Valid(src) {
		return nil, errMarkdownNotUTF8
	}
	var buf bytes.Buffer
	pctx := parser.NewContext(parser.WithIDs(newPrefixedIDs()))
	if err := markdown.Convert(src, &buf, parser.WithContext(pctx)); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// renderMarkdown reads p and serves it as an HTML page.
func (s *StaticFileServer) renderMarkdown(ctx context.Context, p string) Outcome {
	src, err := s.pool.ReadFile(ctx, p)
	if err != nil {
		return Failure(ioError(p, err))
	}
	body, err := markdownToHTML(src)
	if err != nil {
		if errors.Is(err, errMarkdownNotUTF8) {
			return Failure(newError(KindInternal, p, "markdown is not UTF-8", err))
		}
		return Failure(newError(KindInternal, p, "markdown rendering failed", err))
	}
	page, err := renderPageFunc(filepath.Base(p), template.HTML(body))
	if err != nil {
		return Failure(newError(KindInternal, p, "template rendering failed", err))
	}
	s.log.Debug("StaticFileServer: rendered markdown", logger.LogFields{"path": p, "bytes": len(page)})
	return Success(htmlResponse(page))
}
