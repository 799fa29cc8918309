package routes

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"pageshell/framework"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLoader struct {
	imported []string
}

func (l *recordingLoader) Import(_ context.Context, specifier string) (*framework.Module, error) {
	l.imported = append(l.imported, specifier)
	return &framework.Module{Specifier: specifier}, nil
}

func TestParseKeepsDocumentOrder(t *testing.T) {
	manifest, err := Parse([]byte(`
routes:
  - pattern: /(.*)
    module: page/default
  - pattern: /info.html
    module: " page/info "
`))
	require.NoError(t, err)

	assert.Equal(t, BaseLayoutModule, manifest.Layout)
	require.Len(t, manifest.Routes, 2)
	assert.Equal(t, Entry{Pattern: "/(.*)", Module: "page/default"}, manifest.Routes[0])
	assert.Equal(t, Entry{Pattern: "/info.html", Module: "page/info"}, manifest.Routes[1])
}

func TestParseRejectsInvalidManifests(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty document", data: ""},
		{name: "missing pattern", data: "routes:\n  - module: page/info\n"},
		{name: "missing module", data: "routes:\n  - pattern: /info.html\n"},
		{name: "unknown key", data: "routes:\n  - pattern: /x\n    module: page/x\n    component: nope\n"},
		{name: "not a list", data: "routes: /info.html\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestParseAllowsEmptyRouteTable(t *testing.T) {
	manifest, err := Parse([]byte("layout: shell/main\nroutes: []\n"))
	require.NoError(t, err)
	assert.Equal(t, "shell/main", manifest.Layout)
	assert.Empty(t, manifest.Routes)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - pattern: /info.html\n    module: page/info\n"), 0o644))

	manifest, err := Load(path)
	require.NoError(t, err)
	require.Len(t, manifest.Routes, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBindResolvesLazily(t *testing.T) {
	loader := &recordingLoader{}
	bound := Default().Bind(loader)

	require.Len(t, bound, 2)
	assert.Equal(t, "/info.html", bound[0].Pattern)
	assert.Equal(t, "/(.*)", bound[1].Pattern)
	assert.Empty(t, loader.imported)

	module, err := bound[1].Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultPageModule, module.Specifier)

	layout, err := Default().LayoutLoader(loader)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BaseLayoutModule, layout.Specifier)
	assert.Equal(t, []string{DefaultPageModule, BaseLayoutModule}, loader.imported)
}
