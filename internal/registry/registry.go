// Package registry holds the static schemas of the extractable item kinds.
package registry

import (
	"fmt"
	"strings"

	"tadaa_concierge/pkg"
)

// FieldSpec describes one field of an item kind
type FieldSpec struct {
	Name   string
	Values []string // allowed values, empty when free-form
}

// KindSpec is the schema of one item kind
type KindSpec struct {
	Kind       pkg.ItemKind
	Label      string
	Required   []FieldSpec
	Optional   []FieldSpec
	Collection string

	// Selector names a required field whose value picks an extra required
	// field set from Variants (payment: type -> card|paynow|bank).
	Selector string
	Variants map[string][]FieldSpec
	Notes    []string
}

// Registry is a read-only lookup over kind schemas
type Registry struct {
	specs map[pkg.ItemKind]*KindSpec
	order []pkg.ItemKind
}

// New creates a registry with the five built-in kinds
func New() *Registry {
	return NewWithSpecs(defaultSpecs())
}

// NewWithSpecs creates a registry from explicit specs, keeping their order
func NewWithSpecs(specs []*KindSpec) *Registry {
	r := &Registry{specs: make(map[pkg.ItemKind]*KindSpec, len(specs))}
	for _, s := range specs {
		r.specs[s.Kind] = s
		r.order = append(r.order, s.Kind)
	}
	return r
}

// Spec returns the schema for kind
func (r *Registry) Spec(kind pkg.ItemKind) (*KindSpec, error) {
	s, ok := r.specs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pkg.ErrUnknownKind, kind)
	}
	return s, nil
}

// Specs returns all schemas in declaration order
func (r *Registry) Specs() []*KindSpec {
	out := make([]*KindSpec, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.specs[k])
	}
	return out
}

// RequiredFields resolves the required field names of kind against data.
// For a kind with a selector the variant fields are appended only when the
// selector value is present and recognised.
func (r *Registry) RequiredFields(kind pkg.ItemKind, data map[string]any) ([]string, error) {
	s, err := r.Spec(kind)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(s.Required))
	for _, f := range s.Required {
		names = append(names, f.Name)
	}

	if s.Selector == "" {
		return names, nil
	}
	selected, ok := data[s.Selector].(string)
	if !ok {
		return names, nil
	}
	for _, f := range s.Variants[strings.ToLower(strings.TrimSpace(selected))] {
		names = append(names, f.Name)
	}
	return names, nil
}

// MissingFields returns the required fields absent or empty in data, in
// declaration order. A selector holding an unrecognised value counts as
// missing. Never nil.
func (r *Registry) MissingFields(kind pkg.ItemKind, data map[string]any) ([]string, error) {
	required, err := r.RequiredFields(kind, data)
	if err != nil {
		return nil, err
	}

	s, _ := r.Spec(kind)
	missing := []string{}
	for _, name := range required {
		if isEmpty(data[name]) || (name == s.Selector && !s.knownVariant(data[name])) {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// IsComplete reports whether every required field of kind has a value
func (r *Registry) IsComplete(kind pkg.ItemKind, data map[string]any) (bool, error) {
	missing, err := r.MissingFields(kind, data)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// DestinationCollection returns the collection completed items of kind are written to
func (r *Registry) DestinationCollection(kind pkg.ItemKind) (string, error) {
	s, err := r.Spec(kind)
	if err != nil {
		return "", err
	}
	return s.Collection, nil
}

func (s *KindSpec) knownVariant(v any) bool {
	selected, ok := v.(string)
	if !ok {
		return false
	}
	_, known := s.Variants[strings.ToLower(strings.TrimSpace(selected))]
	return known
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
