package staticfile

import (
	"context"
	"html"
	"html/template"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"example.com/basichttpd/internal/logger"
)

// shouldEscapeInHref reports whether b must be percent-encoded in a listing
// href: controls, the URL fragment set (space " < > `), the path extras
// # ? { }, '%' itself so that decoding is exact, and every non-ASCII byte.
func shouldEscapeInHref(b byte) bool {
	if b < 0x20 || b >= 0x7f {
		return true
	}
	switch b {
	case ' ', '"', '<', '>', '`', '#', '?', '{', '}', '%':
		return true
	}
	return false
}

// escapeHref percent-encodes a slash-separated path for use in an href.
func escapeHref(p string) string {
	const upperhex = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(p))
	for i := 0; i < len(p); i++ {
		c := p[i]
		if shouldEscapeInHref(c) {
			sb.WriteByte('%')
			sb.WriteByte(upperhex[c>>4])
			sb.WriteByte(upperhex[c&15])
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

type listingEntry struct {
	name  string
	isDir bool
	size  int64
}

// listDirectory renders the immediate children of dir. webPath is the
// cleaned request path of dir and is the base of every href.
func (s *StaticFileServer) listDirectory(ctx context.Context, dir, webPath string) Outcome {
	s.log.Debug("StaticFileServer: generating directory listing", logger.LogFields{"dir": dir, "web_path": webPath})

	dirEntries, err := s.pool.ReadDir(ctx, dir)
	if err != nil {
		return Failure(ioError(dir, err))
	}

	entries := make([]listingEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if !utf8.ValidString(name) {
			s.log.Warn("StaticFileServer: skipping non-UTF-8 directory entry", logger.LogFields{
				"dir":   dir,
				"entry": strings.ToValidUTF8(name, "\uFFFD"),
			})
			continue
		}
		// Stat follows symlinks so linked directories list as directories.
		fi, err := s.pool.Stat(ctx, filepath.Join(dir, name))
		if err != nil {
			s.log.Warn("StaticFileServer: skipping unreadable directory entry", logger.LogFields{
				"dir":   dir,
				"entry": name,
				"error": err,
			})
			continue
		}
		entries = append(entries, listingEntry{name: name, isDir: fi.IsDir(), size: fi.Size()})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].isDir != entries[j].isDir {
			return entries[i].isDir
		}
		return entries[i].name < entries[j].name
	})

	body := makeDirListBody(webPath, entries)
	page, err := renderPageFunc("Index of "+webPath, template.HTML(body))
	if err != nil {
		return Failure(newError(KindInternal, dir, "template rendering failed", err))
	}
	return Success(htmlResponse(page))
}

func makeDirListBody(webPath string, entries []listingEntry) string {
	var sb strings.Builder
	sb.WriteString("<h1>Index of ")
	sb.WriteString(html.EscapeString(webPath))
	sb.WriteString("</h1>\n<div class=\"listing\">\n")

	parent := path.Dir(webPath)
	if parent != "/" {
		parent += "/"
	}
	writeListingLink(&sb, parent, "..", "")

	for _, e := range entries {
		href := path.Join(webPath, e.name)
		if e.isDir {
			writeListingLink(&sb, href+"/", e.name+"/", "")
			continue
		}
		writeListingLink(&sb, href, e.name, humanize.Bytes(uint64(e.size)))
	}
	sb.WriteString("</div>\n")
	return sb.String()
}

func writeListingLink(sb *strings.Builder, href, text, size string) {
	sb.WriteString(`<div><a href="`)
	sb.WriteString(html.EscapeString(escapeHref(href)))
	sb.WriteString(`">`)
	sb.WriteString(html.EscapeString(text))
	sb.WriteString("</a>")
	if size != "" {
		sb.WriteString(`<span class="size">`)
		sb.WriteString(size)
		sb.WriteString("</span>")
	}
	sb.WriteString("</div>\n")
}

// isDirectory reports whether p exists and is a directory.
func (s *StaticFileServer) isDirectory(ctx context.Context, p string) bool {
	fi, err := s.pool.Stat(ctx, p)
	return err == nil && fi.IsDir()
}
