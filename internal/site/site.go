// Package site defines the page shell modules: the base layout and the
// pages it hosts. Each module renders into a shared Document when imported.
package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"pageshell/framework"
	"pageshell/internal/markdown"
	"pageshell/internal/modules"
	"pageshell/internal/routes"
	"github.com/a-h/templ"
)

const (
	LayoutModule = routes.BaseLayoutModule
	InfoPage     = routes.InfoPageModule
	DefaultPage  = routes.DefaultPageModule
)

const descriptionLength = 160

var errNoContent = errors.New("page content source is nil")

type Options struct {
	RootURL string
}

func DefaultNav() []NavLink {
	return []NavLink{
		{Label: "Home", Href: "#/", Page: DefaultPage},
		{Label: "Info", Href: "#/info.html", Page: InfoPage},
	}
}

// Register defines the layout and page modules on registry. Pages read
// their markdown source from content when first imported.
func Register(registry *modules.Registry, doc *Document, content fs.FS, opts Options) error {
	definitions := []struct {
		specifier string
		evaluate  modules.Init
	}{
		{specifier: LayoutModule, evaluate: layoutModule(doc)},
		{specifier: InfoPage, evaluate: pageModule(doc, content, InfoPage, "info.md", opts)},
		{specifier: DefaultPage, evaluate: pageModule(doc, content, DefaultPage, "default.md", opts)},
	}

	for _, definition := range definitions {
		if err := registry.Register(definition.specifier, definition.evaluate); err != nil {
			return fmt.Errorf("register site module: %w", err)
		}
	}
	return nil
}

func layoutModule(doc *Document) modules.Init {
	return func(context.Context) (framework.Exports, error) {
		doc.MountLayout(BaseLayout)
		return framework.Exports{"layout": LayoutRenderer(BaseLayout)}, nil
	}
}

func pageModule(doc *Document, content fs.FS, specifier string, source string, opts Options) modules.Init {
	return func(ctx context.Context) (framework.Exports, error) {
		if content == nil {
			return nil, errNoContent
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := fs.ReadFile(content, source)
		if err != nil {
			return nil, fmt.Errorf("read page source %q: %w", source, err)
		}
		text := string(data)

		title := markdown.Title(text)
		description := markdown.Excerpt(text, descriptionLength)
		body := markdown.ToHTML(text, markdown.Options{RootURL: opts.RootURL, FragmentLinks: true})
		component := pageArticle(pageClass(specifier), string(body))

		doc.MountPage(specifier, title, description, component)
		return framework.Exports{
			"title":       title,
			"description": description,
			"component":   component,
		}, nil
	}
}

func pageArticle(class string, body string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<article class="page `+templ.EscapeString(class)+`">`+"\n"); err != nil {
			return err
		}
		if err := templ.Raw(body).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</article>")
		return err
	})
}

func pageClass(specifier string) string {
	return "page-" + strings.ReplaceAll(strings.TrimPrefix(specifier, "page/"), "/", "-")
}
