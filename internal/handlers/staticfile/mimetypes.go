package staticfile

import (
	"path/filepath"
	"strings"
)

const (
	defaultOctetStreamMimeType = "application/octet-stream"
	htmlContentType            = "text/html; charset=utf-8"
	plainTextContentType       = "text/plain; charset=utf-8"
)

// defaultMimeTypes is the complete built-in table. Extensions missing from
// it are served as application/octet-stream.
var defaultMimeTypes = map[string]string{
	".aac":   "audio/aac",
	".apng":  "image/apng",
	".avif":  "image/avif",
	".avi":   "video/x-msvideo",
	".bin":   "application/octet-stream",
	".bmp":   "image/bmp",
	".bz2":   "application/x-bzip2",
	".css":   "text/css; charset=utf-8",
	".csv":   "text/csv; charset=utf-8",
	".epub":  "application/epub+zip",
	".gz":    "application/gzip",
	".gif":   "image/gif",
	".htm":   "text/html; charset=utf-8",
	".html":  "text/html; charset=utf-8",
	".ico":   "image/vnd.microsoft.icon",
	".jpeg":  "image/jpeg",
	".jpg":   "image/jpeg",
	".js":    "text/javascript; charset=utf-8",
	".json":  "application/json; charset=utf-8",
	".map":   "application/json; charset=utf-8",
	".md":    "text/markdown; charset=utf-8",
	".mjs":   "text/javascript; charset=utf-8",
	".mp3":   "audio/mpeg",
	".mp4":   "video/mp4",
	".mpeg":  "video/mpeg",
	".oga":   "audio/ogg",
	".ogv":   "video/ogg",
	".opus":  "audio/opus",
	".otf":   "font/otf",
	".pdf":   "application/pdf",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".tar":   "application/x-tar",
	".tif":   "image/tiff",
	".tiff":  "image/tiff",
	".ttf":   "font/ttf",
	".txt":   "text/plain; charset=utf-8",
	".wasm":  "application/wasm",
	".wav":   "audio/wav",
	".weba":  "audio/webm",
	".webm":  "video/webm",
	".webp":  "image/webp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".xhtml": "application/xhtml+xml; charset=utf-8",
	".xml":   "application/xml; charset=utf-8",
	".zip":   "application/zip",
	".7z":    "application/x-7z-compressed",
}

// plainTextExtensions are source and text formats that browsers would
// otherwise download instead of display. Keys have no leading dot.
var plainTextExtensions = map[string]struct{}{
	"asm": {}, "bash": {}, "bat": {}, "c": {}, "cc": {}, "cfg": {}, "clj": {},
	"cmake": {}, "conf": {}, "cpp": {}, "cs": {}, "cxx": {}, "d": {}, "dart": {},
	"diff": {}, "el": {}, "elm": {}, "erl": {}, "ex": {}, "exs": {}, "fish": {},
	"fs": {}, "go": {}, "gradle": {}, "h": {}, "hh": {}, "hpp": {}, "hs": {},
	"ini": {}, "java": {}, "jl": {}, "jsx": {}, "kt": {}, "kts": {}, "less": {},
	"lisp": {}, "lock": {}, "log": {}, "lua": {}, "m": {}, "mk": {}, "ml": {},
	"mli": {}, "mod": {}, "nim": {}, "nix": {}, "patch": {}, "php": {}, "pl": {},
	"pm": {}, "properties": {}, "proto": {}, "ps1": {}, "py": {}, "r": {}, "rb": {},
	"rs": {}, "rst": {}, "s": {}, "sass": {}, "scala": {}, "scm": {}, "scss": {},
	"sh": {}, "sql": {}, "sum": {}, "swift": {}, "tcl": {}, "tex": {}, "toml": {},
	"ts": {}, "tsx": {}, "txt": {}, "vim": {}, "vue": {}, "yaml": {}, "yml": {},
	"zig": {}, "zsh": {},
}

// plainTextFileNames match whole file names, usually extensionless.
var plainTextFileNames = map[string]struct{}{
	".dockerignore": {}, ".editorconfig": {}, ".gitattributes": {}, ".gitignore": {},
	".gitmodules": {}, ".mailmap": {}, "AUTHORS": {}, "CHANGELOG": {}, "CODEOWNERS": {},
	"CONTRIBUTING": {}, "COPYING": {}, "Dockerfile": {}, "Gemfile": {}, "LICENSE": {},
	"LICENSE-APACHE": {}, "LICENSE-MIT": {}, "Makefile": {}, "NOTICE": {}, "Procfile": {},
	"README": {}, "Rakefile": {}, "TODO": {}, "Vagrantfile": {},
}

// neverPlainText lists extensions whose real type must reach the browser.
var neverPlainText = map[string]struct{}{
	"css": {}, "htm": {}, "html": {}, "js": {}, "mjs": {}, "xhtml": {},
}

// MimeTypeResolver encapsulates the logic for determining MIME types.
type MimeTypeResolver struct {
	customMimeTypes map[string]string // lowercased ".ext" -> type
	plainText       map[string]struct{}
}

// NewMimeTypeResolver merges user MIME overrides and extra plain-text
// extensions (with or without a leading dot) over the built-in tables.
func NewMimeTypeResolver(customMimeTypes map[string]string, extraPlainText []string) *MimeTypeResolver {
	r := &MimeTypeResolver{
		customMimeTypes: make(map[string]string, len(customMimeTypes)),
		plainText:       make(map[string]struct{}, len(plainTextExtensions)+len(extraPlainText)),
	}
	for ext, mimeType := range customMimeTypes {
		r.customMimeTypes[strings.ToLower(ext)] = mimeType
	}
	for ext := range plainTextExtensions {
		r.plainText[ext] = struct{}{}
	}
	for _, ext := range extraPlainText {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		if _, never := neverPlainText[ext]; ext == "" || never {
			continue
		}
		r.plainText[ext] = struct{}{}
	}
	return r
}

// Resolve determines the MIME type for a file path from its extension:
// user overrides, then the built-in table, and finally
// application/octet-stream. The host's mime.types files are never read, so
// the mapping is the same on every machine. It never fails.
func (r *MimeTypeResolver) Resolve(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" {
		return defaultOctetStreamMimeType
	}
	if mimeType, ok := r.customMimeTypes[ext]; ok {
		return mimeType
	}
	if mimeType, ok := defaultMimeTypes[ext]; ok {
		return mimeType
	}
	return defaultOctetStreamMimeType
}

// IsPlainText reports whether the file should be displayed as text by the
// browser, judged by its exact name or its extension.
func (r *MimeTypeResolver) IsPlainText(filePath string) bool {
	base := filepath.Base(filePath)
	if _, ok := plainTextFileNames[base]; ok {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	if ext == "" {
		return false
	}
	if _, never := neverPlainText[ext]; never {
		return false
	}
	_, ok := r.plainText[ext]
	return ok
}
