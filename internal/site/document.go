package site

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/a-h/templ"
)

var ErrNoLayout = errors.New("base layout is not mounted")

type NavLink struct {
	Label string
	Href  string
	// Page is the module specifier the link routes to.
	Page string
}

type ShellView struct {
	Title       string
	Description string
	ActivePage  string
	Nav         []NavLink
}

type LayoutRenderer func(view ShellView, main templ.Component) templ.Component

type mountedPage struct {
	specifier   string
	title       string
	description string
	component   templ.Component
}

// Document is the render target shared by the layout and page modules.
// Page modules mount from their own load goroutines.
type Document struct {
	mu     sync.RWMutex
	title  string
	nav    []NavLink
	layout LayoutRenderer
	page   *mountedPage
}

func NewDocument(title string, nav []NavLink) *Document {
	return &Document{title: title, nav: nav}
}

func (d *Document) MountLayout(layout LayoutRenderer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.layout = layout
}

func (d *Document) HasLayout() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.layout != nil
}

func (d *Document) MountPage(specifier string, title string, description string, component templ.Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.page = &mountedPage{
		specifier:   specifier,
		title:       title,
		description: description,
		component:   component,
	}
}

// Page reports the specifier of the mounted page, or "" before any page
// has rendered.
func (d *Document) Page() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.page == nil {
		return ""
	}
	return d.page.specifier
}

func (d *Document) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.titleLocked()
}

func (d *Document) titleLocked() string {
	if d.page == nil || d.page.title == "" {
		return d.title
	}
	if d.title == "" {
		return d.page.title
	}
	return d.page.title + " | " + d.title
}

func (d *Document) Render(ctx context.Context, w io.Writer) error {
	d.mu.RLock()
	layout := d.layout
	view := ShellView{
		Title: d.titleLocked(),
		Nav:   append([]NavLink(nil), d.nav...),
	}
	var body templ.Component = templ.NopComponent
	if d.page != nil {
		view.Description = d.page.description
		view.ActivePage = d.page.specifier
		body = d.page.component
	}
	d.mu.RUnlock()

	if layout == nil {
		return ErrNoLayout
	}
	return layout(view, body).Render(ctx, w)
}
