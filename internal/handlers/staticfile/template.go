package staticfile

import (
	"bytes"
	_ "embed"
	"html/template"
)

//go:embed template.html
var pageTemplateText string

var pageTemplate = template.Must(template.New("page").Parse(pageTemplateText))

// pageData is everything the page template sees. Title is escaped by the
// template; Body is already-rendered HTML and is inserted as is.
type pageData struct {
	Title string
	Body  template.HTML
}

// renderPageFunc allows swapping out page rendering for testing.
var renderPageFunc = renderPage

func renderPage(title string, body template.HTML) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, pageData{Title: title, Body: body}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
