package runbook

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Parse decodes raw TOML content into a Raw document and its metadata
// (needed later to resolve the polymorphic action fields).
func Parse(content string) (Raw, toml.MetaData, error) {
	var raw Raw
	md, err := toml.Decode(content, &raw)
	if err != nil {
		return Raw{}, toml.MetaData{}, fmt.Errorf("runbook: toml syntax error: %w", err)
	}
	return raw, md, nil
}

// ParseFile reads path and parses it as a runbook.
func ParseFile(path string) (Raw, toml.MetaData, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Raw{}, toml.MetaData{}, fmt.Errorf("runbook: read %s: %w", path, err)
	}
	return Parse(string(b))
}
