package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldDescriptor describes one field of a module's records
type FieldDescriptor struct {
	Code          string `yaml:"code"`
	Name          string `yaml:"name"`
	IsSystemField bool   `yaml:"is_system_field"`
}

// ModuleDescriptor describes one functional module of the platform
type ModuleDescriptor struct {
	Code   string            `yaml:"code"`
	Name   string            `yaml:"name"`
	Fields []FieldDescriptor `yaml:"fields"`
}

// Registry is the static set of known modules. It is loaded once at startup
// and injected wherever module metadata is needed; nothing mutates it after
// load. Lookups are case-insensitive, matching permission code semantics.
type Registry struct {
	modules map[string]ModuleDescriptor
	order   []string
}

// file is the YAML document shape
type file struct {
	Modules []ModuleDescriptor `yaml:"modules"`
}

// New builds a registry from descriptors, validating codes are present and
// unique (case-insensitively).
func New(descriptors []ModuleDescriptor) (*Registry, error) {
	r := &Registry{modules: make(map[string]ModuleDescriptor, len(descriptors))}
	for _, d := range descriptors {
		code := strings.ToLower(strings.TrimSpace(d.Code))
		if code == "" {
			return nil, fmt.Errorf("module descriptor %q has no code", d.Name)
		}
		if _, exists := r.modules[code]; exists {
			return nil, fmt.Errorf("duplicate module code %q", code)
		}
		seen := make(map[string]struct{}, len(d.Fields))
		for _, f := range d.Fields {
			fieldCode := strings.ToLower(strings.TrimSpace(f.Code))
			if fieldCode == "" {
				return nil, fmt.Errorf("module %q has a field with no code", code)
			}
			if _, dup := seen[fieldCode]; dup {
				return nil, fmt.Errorf("module %q has duplicate field %q", code, fieldCode)
			}
			seen[fieldCode] = struct{}{}
		}
		r.modules[code] = d
		r.order = append(r.order, code)
	}
	return r, nil
}

// Load reads a registry from a YAML file
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse registry file: %w", err)
	}
	return New(doc.Modules)
}

// LoadFromDir searches dir for a registry file under its conventional names
func LoadFromDir(dir string) (*Registry, error) {
	names := []string{"atrium-modules.yaml", "atrium-modules.yml", ".atrium-modules.yaml"}
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return nil, fmt.Errorf("no registry file found in %s", dir)
}

// Get returns the descriptor for a module code, case-insensitively
func (r *Registry) Get(code string) (ModuleDescriptor, bool) {
	d, ok := r.modules[strings.ToLower(strings.TrimSpace(code))]
	return d, ok
}

// Has reports whether a module code is registered
func (r *Registry) Has(code string) bool {
	_, ok := r.Get(code)
	return ok
}

// Modules returns all descriptors in file order
func (r *Registry) Modules() []ModuleDescriptor {
	out := make([]ModuleDescriptor, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.modules[code])
	}
	return out
}

// Field returns one field descriptor of a module, case-insensitively
func (r *Registry) Field(moduleCode, fieldCode string) (FieldDescriptor, bool) {
	d, ok := r.Get(moduleCode)
	if !ok {
		return FieldDescriptor{}, false
	}
	fieldCode = strings.ToLower(strings.TrimSpace(fieldCode))
	for _, f := range d.Fields {
		if strings.ToLower(f.Code) == fieldCode {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}
