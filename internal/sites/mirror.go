package sites

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/natefinch/atomic"
	"github.com/sidereusnuntius/fedhost/internal/domain"
)

// mirrorFile is the layout of sites.json.
type mirrorFile struct {
	Sites         map[string]domain.SiteConfig `json:"sites"`
	CustomDomains map[string]string            `json:"customDomains"`
}

// Mirror keeps a copy of every site configuration in a JSON file, replaced atomically on each save, so the map of
// sites and custom domains can be inspected and restored without the database.
type Mirror struct {
	path string
}

func NewMirror(path string) *Mirror {
	return &Mirror{path: path}
}

func (m *Mirror) Save(configs []domain.SiteConfig) error {
	f := mirrorFile{
		Sites:         make(map[string]domain.SiteConfig, len(configs)),
		CustomDomains: map[string]string{},
	}
	for _, c := range configs {
		f.Sites[c.Subdomain] = c
		for _, d := range c.CustomDomains {
			f.CustomDomains[d] = c.Subdomain
		}
	}

	content, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return err
	}
	return atomic.WriteFile(m.path, bytes.NewReader(content))
}

// Load returns the saved configurations sorted by site. A missing file holds none.
func (m *Mirror) Load() ([]domain.SiteConfig, error) {
	content, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var f mirrorFile
	if err = json.Unmarshal(content, &f); err != nil {
		return nil, err
	}
	configs := make([]domain.SiteConfig, 0, len(f.Sites))
	for name, c := range f.Sites {
		c.Subdomain = name
		configs = append(configs, c)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Subdomain < configs[j].Subdomain })
	return configs, nil
}
