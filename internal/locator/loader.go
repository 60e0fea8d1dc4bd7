package locator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"zapp/pkg/logging"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// FilePattern matches locator declaration files below the root directory.
const FilePattern = "**/*_locators.{yaml,yml,toml}"

type locatorFile struct {
	Locators map[string]string `yaml:"locators" toml:"locators"`
}

// Load reads every locator file below root in lexical path order, so a file
// sorting later overrides names declared earlier.
func Load(root string) (*Registry, []Collision, error) {
	b := NewBuilder()
	if err := LoadInto(b, root); err != nil {
		return nil, nil, err
	}
	return b.Build(), b.Collisions(), nil
}

// LoadInto adds every locator file below root to b.
func LoadInto(b *Builder, root string) error {
	matches, err := doublestar.Glob(os.DirFS(root), FilePattern)
	if err != nil {
		return fmt.Errorf("failed to scan %s for locator files: %w", root, err)
	}
	sort.Strings(matches)

	for _, rel := range matches {
		path := filepath.Join(root, filepath.FromSlash(rel))
		locators, err := ReadFile(path)
		if err != nil {
			return err
		}
		b.Add(path, locators)
		logging.Debug("Locators", "Loaded %d locators from %s", len(locators), path)
	}
	return nil
}

// ReadFile decodes a single YAML or TOML locator file.
func ReadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locator file %s: %w", path, err)
	}

	var file locatorFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &file)
	default:
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse locator file %s: %w", path, err)
	}

	if file.Locators == nil {
		return map[string]string{}, nil
	}
	return file.Locators, nil
}
