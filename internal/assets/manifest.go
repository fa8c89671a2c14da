// Package assets reads the front-end build manifest produced by Vite.
package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type Entry struct {
	File    string   `json:"file"`
	Src     string   `json:"src,omitempty"`
	IsEntry bool     `json:"isEntry,omitempty"`
	CSS     []string `json:"css,omitempty"`
	Imports []string `json:"imports,omitempty"`
}

// Manifest is loaded once at startup. A Manifest with no entries means the
// front-end is served by the dev server.
type Manifest struct {
	BaseURL string
	entries map[string]Entry
}

// Load reads manifest.json at path. An empty path yields a dev-mode manifest.
func Load(path, baseURL string) (*Manifest, error) {
	m := &Manifest{BaseURL: strings.TrimRight(baseURL, "/"), entries: map[string]Entry{}}
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m.entries); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

func (m *Manifest) DevMode() bool { return len(m.entries) == 0 }

func (m *Manifest) Lookup(name string) (Entry, bool) {
	e, ok := m.entries[name]
	return e, ok
}

// EntryPoints returns the entry chunks keyed by manifest name, with asset
// paths prefixed by BaseURL. Non-entry chunks are left out.
func (m *Manifest) EntryPoints() map[string]Entry {
	out := make(map[string]Entry)
	for name, e := range m.entries {
		if !e.IsEntry {
			continue
		}
		e.File = m.url(e.File)
		css := make([]string, len(e.CSS))
		for i, c := range e.CSS {
			css[i] = m.url(c)
		}
		e.CSS = css
		out[name] = e
	}
	return out
}

func (m *Manifest) url(file string) string {
	if m.BaseURL == "" {
		return "/" + strings.TrimLeft(file, "/")
	}
	return m.BaseURL + "/" + strings.TrimLeft(file, "/")
}
