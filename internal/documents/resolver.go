// Package documents resolves which supporting documents a pathway needs and
// stores upload references in the form.
package documents

import (
	"intake/internal/form"
	"intake/internal/pathway"
)

// Requirement is one document slot bound to a form field.
type Requirement struct {
	DocumentID pathway.DocumentID `json:"documentId"`
	Label      string             `json:"label"`
	Required   bool               `json:"required"`
	FieldPath  string             `json:"fieldPath"`
}

// FieldPath is where the uploaded reference for a document lives.
func FieldPath(id pathway.DocumentID) string {
	return form.FieldDocuments + "." + string(id)
}

// Resolver derives document slots from the pathway registry.
type Resolver struct {
	registry *pathway.Registry
}

// NewResolver builds a resolver over registry.
func NewResolver(registry *pathway.Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Requirements returns the essential documents followed by the pathway's
// additions. Everything is required unless the pathway marks it optional.
func (r *Resolver) Requirements(t pathway.ActivityType) ([]Requirement, error) {
	cfg, err := r.registry.Config(t)
	if err != nil {
		return nil, err
	}

	seen := map[pathway.DocumentID]bool{}
	var out []Requirement
	add := func(id pathway.DocumentID, required bool) {
		if seen[id] {
			return
		}
		seen[id] = true
		def, _ := r.registry.Document(id)
		out = append(out, Requirement{
			DocumentID: id,
			Label:      def.Label,
			Required:   required,
			FieldPath:  FieldPath(id),
		})
	}
	for _, id := range r.registry.EssentialDocuments() {
		add(id, true)
	}
	for _, id := range cfg.RequiredDocumentIDs {
		add(id, true)
	}
	for _, id := range cfg.OptionalDocumentIDs {
		add(id, false)
	}
	return out, nil
}

// Missing lists required slots with no reference in d.
func Missing(reqs []Requirement, d form.Draft) []Requirement {
	var out []Requirement
	for _, req := range reqs {
		if !req.Required {
			continue
		}
		if v, ok := d.Get(req.FieldPath); !ok || !form.HasValue(v) {
			out = append(out, req)
		}
	}
	return out
}
