package languages

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExtensionMap translates attachment file extensions into language tokens for extensions that are
// not catalog aliases themselves (h -> c, hpp -> c++).
type ExtensionMap map[string]string

type extensionFile struct {
	Extensions map[string]string `yaml:"extensions"`
}

// LoadExtensionMap reads an extension map from a YAML file of the form
//
//	extensions:
//	  h: c
//	  hpp: c++
//
// An empty path yields an empty map.
func LoadExtensionMap(path string) (ExtensionMap, error) {
	if path == "" {
		return ExtensionMap{}, nil
	}
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("read extension map from %s: %w", path, readErr)
	}
	var raw extensionFile
	if unmarshalErr := yaml.Unmarshal(data, &raw); unmarshalErr != nil {
		return nil, fmt.Errorf("parse extension map from %s: %w", path, unmarshalErr)
	}
	extensions := make(ExtensionMap, len(raw.Extensions))
	for extension, token := range raw.Extensions {
		normalizedExtension := normalizeExtension(extension)
		normalizedToken := normalizeToken(token)
		if normalizedExtension == "" || normalizedToken == "" {
			continue
		}
		extensions[normalizedExtension] = normalizedToken
	}
	return extensions, nil
}

// Token returns the language token for an extension. Unmapped extensions are returned normalized,
// so that extensions which are catalog aliases (py, js, rs) resolve directly.
func (extensions ExtensionMap) Token(extension string) string {
	normalized := normalizeExtension(extension)
	if token, found := extensions[normalized]; found {
		return token
	}
	return normalized
}

func normalizeExtension(extension string) string {
	return normalizeToken(strings.TrimPrefix(strings.TrimSpace(extension), "."))
}
