package site

import (
	"context"
	"io"
	"strings"

	"pageshell/internal/markdown"
	"github.com/a-h/templ"
)

const shellStyles = `body{margin:0;font-family:system-ui,sans-serif;line-height:1.5}` +
	`header{display:flex;gap:1rem;padding:1rem 2rem;border-bottom:1px solid #ddd}` +
	`header a[aria-current=page]{font-weight:600}` +
	`main{max-width:48rem;margin:0 auto;padding:2rem}`

// BaseLayout renders the shell around the page mounted in main.
func BaseLayout(view ShellView, main templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var head strings.Builder
		head.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
		head.WriteString("<meta charset=\"utf-8\">\n")
		head.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
		head.WriteString("<title>" + templ.EscapeString(view.Title) + "</title>\n")
		if view.Description != "" {
			head.WriteString("<meta name=\"description\" content=\"" + templ.EscapeString(view.Description) + "\">\n")
		}
		head.WriteString("<style>" + shellStyles + "\n" + string(markdown.ChromaCSS()) + "</style>\n")
		head.WriteString("</head>\n<body>\n<header>\n<nav>\n")
		for _, link := range view.Nav {
			head.WriteString("<a href=\"" + templ.EscapeString(link.Href) + "\"")
			if view.ActivePage != "" && link.Page == view.ActivePage {
				head.WriteString(" aria-current=\"page\"")
			}
			head.WriteString(">" + templ.EscapeString(link.Label) + "</a>\n")
		}
		head.WriteString("</nav>\n</header>\n<main id=\"page\">\n")

		if _, err := io.WriteString(w, head.String()); err != nil {
			return err
		}
		if err := main.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n</main>\n</body>\n</html>\n")
		return err
	})
}
