package routes

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"pageshell/framework"
	"gopkg.in/yaml.v3"
)

const (
	BaseLayoutModule  = "component/base-layout"
	InfoPageModule    = "page/info"
	DefaultPageModule = "page/default"
)

type Entry struct {
	Pattern string `yaml:"pattern"`
	Module  string `yaml:"module"`
}

// Manifest is an ordered route table. Order decides which route wins.
type Manifest struct {
	Layout string  `yaml:"layout"`
	Routes []Entry `yaml:"routes"`
}

func Default() Manifest {
	return Manifest{
		Layout: BaseLayoutModule,
		Routes: []Entry{
			{Pattern: "/info.html", Module: InfoPageModule},
			{Pattern: "/(.*)", Module: DefaultPageModule},
		},
	}
}

func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read route manifest %q: %w", path, err)
	}

	manifest, err := Parse(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("route manifest %q: %w", path, err)
	}
	return manifest, nil
}

func Parse(data []byte) (Manifest, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var manifest Manifest
	if err := decoder.Decode(&manifest); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, errors.New("route manifest is empty")
		}
		return Manifest{}, fmt.Errorf("decode route manifest: %w", err)
	}

	manifest.Layout = strings.TrimSpace(manifest.Layout)
	if manifest.Layout == "" {
		manifest.Layout = BaseLayoutModule
	}

	for idx := range manifest.Routes {
		entry := &manifest.Routes[idx]
		entry.Module = strings.TrimSpace(entry.Module)
		if entry.Pattern == "" {
			return Manifest{}, fmt.Errorf("route %d: pattern is required", idx)
		}
		if entry.Module == "" {
			return Manifest{}, fmt.Errorf("route %d %q: module is required", idx, entry.Pattern)
		}
	}

	return manifest, nil
}

// Bind resolves every entry against loader, keeping document order.
func (m Manifest) Bind(loader framework.ModuleLoader) []framework.Route {
	bound := make([]framework.Route, 0, len(m.Routes))
	for _, entry := range m.Routes {
		bound = append(bound, framework.Route{
			Pattern: entry.Pattern,
			Load:    framework.Import(loader, entry.Module),
		})
	}
	return bound
}

func (m Manifest) LayoutLoader(loader framework.ModuleLoader) framework.Loader {
	return framework.Import(loader, m.Layout)
}
