package idl

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrUnknownMethod is returned for method names the description does not
// declare. Dispatch is by exact lookup, never dynamic property access.
var ErrUnknownMethod = errors.New("unknown method")

// Load reads and parses the interface description file.
func Load(path string, programIDOverride string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read interface description: %w", err)
	}
	return Parse(data, programIDOverride)
}

// Method returns the definition for name (case and underscore insensitive).
func (r *Registry) Method(name string) (*Method, error) {
	if m, ok := r.methods[normalize(name)]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownMethod, name, strings.Join(r.MethodNames(), ", "))
}

// FindMethod returns the first method matching any candidate name, falling
// back to the first method whose name contains every fallback substring.
// Program versions rename instructions between releases; callers pass the
// known aliases in preference order.
func (r *Registry) FindMethod(candidates []string, fallbackContains []string) (*Method, error) {
	for _, c := range candidates {
		if m, ok := r.methods[normalize(c)]; ok {
			return m, nil
		}
	}
	if len(fallbackContains) > 0 {
		for _, name := range r.MethodNames() {
			norm := normalize(name)
			all := true
			for _, frag := range fallbackContains {
				if !strings.Contains(norm, normalize(frag)) {
					all = false
					break
				}
			}
			if all {
				return r.methods[norm], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: none of %s", ErrUnknownMethod, strings.Join(candidates, ", "))
}

// MethodNames returns the declared method names, sorted.
func (r *Registry) MethodNames() []string {
	names := make([]string, 0, len(r.methods))
	for _, m := range r.methods {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}

// SeedSpec returns the PDA seed specification declared for roleName in any
// method, or nil when the description carries none (callers then fall back
// to the heuristic recipe).
func (r *Registry) SeedSpec(roleName string) []Seed {
	want := normalize(roleName)
	for _, m := range r.methods {
		for _, role := range m.Accounts {
			if normalize(role.Name) == want && len(role.Seeds) > 0 {
				return role.Seeds
			}
		}
	}
	return nil
}

// Struct returns a named struct definition from the types section.
func (r *Registry) Struct(name string) (*StructDef, bool) {
	s, ok := r.structs[name]
	return s, ok
}

// Enum returns a named unit-variant enum definition.
func (r *Registry) Enum(name string) (*EnumDef, bool) {
	e, ok := r.enums[name]
	return e, ok
}

// AccountSchema returns the decodable layout for an account type name.
func (r *Registry) AccountSchema(name string) (*AccountSchema, bool) {
	s, ok := r.accounts[normalize(name)]
	return s, ok
}

// AccountNames returns the declared account type names, sorted.
func (r *Registry) AccountNames() []string {
	names := make([]string, 0, len(r.accounts))
	for _, a := range r.accounts {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

// Error resolves a program-defined error code to its declared name/message.
func (r *Registry) Error(code int) (ProgramError, bool) {
	e, ok := r.errors[code]
	return e, ok
}
