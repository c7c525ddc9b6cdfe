package rbac

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Modules []catalogModule `yaml:"modules"`
}

type catalogModule struct {
	Name    string          `yaml:"name"`
	Actions []catalogAction `yaml:"actions"`
}

type catalogAction struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	RequiresAdmin bool   `yaml:"requires_admin"`
	Inactive      bool   `yaml:"inactive"`
}

// ParseCatalog decodes a YAML permission catalog.
func ParseCatalog(data []byte) ([]PermissionDefinition, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("rbac: parse catalog: %w", err)
	}
	seen := make(map[string]struct{})
	var defs []PermissionDefinition
	for _, m := range file.Modules {
		if normalize(m.Name) == "" {
			return nil, fmt.Errorf("rbac: parse catalog: module without name")
		}
		if normalize(m.Name) == NavModule {
			return nil, fmt.Errorf("rbac: parse catalog: module %q is reserved", NavModule)
		}
		for _, a := range m.Actions {
			def := PermissionDefinition{
				Module:            normalize(m.Name),
				Action:            normalize(a.Name),
				Description:       a.Description,
				Active:            !a.Inactive,
				RequiresAdminRole: a.RequiresAdmin,
			}
			if def.Action == "" {
				return nil, fmt.Errorf("rbac: parse catalog: module %s has an action without name", def.Module)
			}
			if _, dup := seen[def.Key()]; dup {
				return nil, fmt.Errorf("rbac: parse catalog: duplicate permission %s", def.Key())
			}
			seen[def.Key()] = struct{}{}
			defs = append(defs, def)
		}
	}
	return defs, nil
}

var loadDefaultCatalog = sync.OnceValues(func() ([]PermissionDefinition, error) {
	return ParseCatalog(catalogYAML)
})

// DefaultCatalog returns the embedded permission catalog. It panics if the
// embedded file is malformed, which the package tests guard against.
func DefaultCatalog() []PermissionDefinition {
	defs, err := loadDefaultCatalog()
	if err != nil {
		panic(err)
	}
	out := make([]PermissionDefinition, len(defs))
	copy(out, defs)
	return out
}
