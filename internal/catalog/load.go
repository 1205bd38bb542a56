package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// file is the on-disk layout of a catalog.
type file struct {
	Scenes []Scene `yaml:"scenes"`
}

// Load reads a catalog from a YAML file.
//
// Parameters:
//   - path: Path to the scenes YAML file
//
// Returns:
//   - *Catalog: Normalised catalog
//   - []Adjustment: Defaults substituted during load
//   - error: If the file cannot be read or parsed, or the catalog is invalid
func Load(path string) (*Catalog, []Adjustment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML bytes.
func Parse(data []byte) (*Catalog, []Adjustment, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return New(f.Scenes)
}
