package sites

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const (
	ManifestFile = "site.toml"
	ServerFile   = "server.js"
)

// Manifest is the optional site.toml of a site directory:
//
//	handler = "profile"          # a built-in handler serving what static files do not
//	command = ["./bin/app"]      # or a child process, reached through the proxy
//	static = "public"            # the directory static files are served from
type Manifest struct {
	Handler string   `toml:"handler"`
	Command []string `toml:"command"`
	Static  string   `toml:"static"`
}

// readManifest returns the zero manifest when dir has no site.toml.
func readManifest(dir string) (Manifest, error) {
	var m Manifest
	content, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	} else if err != nil {
		return m, err
	}

	if err = toml.Unmarshal(content, &m); err != nil {
		return m, fmt.Errorf("%s: %w", ManifestFile, err)
	}
	if m.Handler != "" && len(m.Command) > 0 {
		return m, fmt.Errorf("%s: handler and command are exclusive", ManifestFile)
	}
	if m.Static != "" && !filepath.IsLocal(m.Static) {
		return m, fmt.Errorf("%s: static must be a directory inside the site", ManifestFile)
	}
	return m, nil
}
