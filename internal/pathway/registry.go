// Package pathway holds the closed set of licence pathways and resolves which
// onboarding steps each one renders.
package pathway

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	dErrors "intake/pkg/domain-errors"
)

//go:embed catalogue.yaml
var catalogueYAML []byte

// ErrUnknownActivityType is returned for activity types outside the closed
// set. It indicates a programming error upstream, not bad user input.
var ErrUnknownActivityType = errors.New("unknown activity type")

type catalogueFile struct {
	Steps              []StepDefinition     `yaml:"steps"`
	Documents          []DocumentDefinition `yaml:"documents"`
	EssentialDocuments []DocumentID         `yaml:"essentialDocuments"`
	Pathways           []Config             `yaml:"pathways"`
}

// Registry maps activity types to pathway configuration.
type Registry struct {
	steps     []StepDefinition
	stepIndex map[StepID]int
	documents map[DocumentID]DocumentDefinition
	essential []DocumentID
	pathways  map[ActivityType]Config
	order     []ActivityType
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry built from the embedded catalogue. A broken
// catalogue is a build defect and panics.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := Load(catalogueYAML)
		if err != nil {
			panic(fmt.Sprintf("pathway: invalid embedded catalogue: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Load parses and validates a catalogue document.
func Load(data []byte) (*Registry, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}

	r := &Registry{
		steps:     file.Steps,
		stepIndex: make(map[StepID]int, len(file.Steps)),
		documents: make(map[DocumentID]DocumentDefinition, len(file.Documents)),
		essential: file.EssentialDocuments,
		pathways:  make(map[ActivityType]Config, len(file.Pathways)),
	}
	for i, s := range file.Steps {
		if _, dup := r.stepIndex[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step %q", s.ID)
		}
		r.stepIndex[s.ID] = i
	}
	for _, d := range file.Documents {
		r.documents[d.ID] = d
	}
	for _, id := range file.EssentialDocuments {
		if _, ok := r.documents[id]; !ok {
			return nil, fmt.Errorf("essential document %q not in catalogue", id)
		}
	}

	for _, p := range file.Pathways {
		if !p.ActivityType.IsValid() {
			return nil, fmt.Errorf("pathway %q: %w", p.ActivityType, ErrUnknownActivityType)
		}
		if _, dup := r.pathways[p.ActivityType]; dup {
			return nil, fmt.Errorf("duplicate pathway %q", p.ActivityType)
		}
		if err := r.validatePathway(p); err != nil {
			return nil, fmt.Errorf("pathway %q: %w", p.ActivityType, err)
		}
		r.pathways[p.ActivityType] = p
		r.order = append(r.order, p.ActivityType)
	}
	if len(r.pathways) != len(validActivityTypes) {
		return nil, fmt.Errorf("catalogue defines %d pathways, want %d", len(r.pathways), len(validActivityTypes))
	}
	return r, nil
}

func (r *Registry) validatePathway(p Config) error {
	required := make(map[StepID]bool, len(p.RequiredStepIDs))
	for _, id := range p.RequiredStepIDs {
		if _, ok := r.stepIndex[id]; !ok {
			return fmt.Errorf("unknown required step %q", id)
		}
		required[id] = true
	}
	for _, id := range p.OptionalStepIDs {
		if _, ok := r.stepIndex[id]; !ok {
			return fmt.Errorf("unknown optional step %q", id)
		}
		if required[id] {
			return fmt.Errorf("step %q is both required and optional", id)
		}
	}
	for _, id := range slices.Concat(p.RequiredDocumentIDs, p.OptionalDocumentIDs) {
		if _, ok := r.documents[id]; !ok {
			return fmt.Errorf("unknown document %q", id)
		}
	}
	return nil
}

// Config returns the pathway for an activity type. Unknown types fail with a
// CodeConfiguration error wrapping ErrUnknownActivityType.
func (r *Registry) Config(t ActivityType) (Config, error) {
	p, ok := r.pathways[t]
	if !ok {
		return Config{}, dErrors.Wrap(ErrUnknownActivityType, dErrors.CodeConfiguration,
			fmt.Sprintf("no pathway for activity type %q", t))
	}
	return p.clone(), nil
}

// ActivityTypes lists the configured activity types in catalogue order.
func (r *Registry) ActivityTypes() []ActivityType {
	return slices.Clone(r.order)
}

// Catalogue returns the master step catalogue in canonical order.
func (r *Registry) Catalogue() []StepDefinition {
	return slices.Clone(r.steps)
}

// Step looks up a catalogue step.
func (r *Registry) Step(id StepID) (StepDefinition, bool) {
	i, ok := r.stepIndex[id]
	if !ok {
		return StepDefinition{}, false
	}
	return r.steps[i], true
}

// Document looks up a catalogue document.
func (r *Registry) Document(id DocumentID) (DocumentDefinition, bool) {
	d, ok := r.documents[id]
	return d, ok
}

// EssentialDocuments are required on every pathway.
func (r *Registry) EssentialDocuments() []DocumentID {
	return slices.Clone(r.essential)
}

// Resolver builds the step visibility resolver for an activity type.
func (r *Registry) Resolver(t ActivityType) (*Resolver, error) {
	cfg, err := r.Config(t)
	if err != nil {
		return nil, err
	}
	return newResolver(r.steps, cfg), nil
}

// VisibleSteps is shorthand for Resolver(t).VisibleSteps().
func (r *Registry) VisibleSteps(t ActivityType) ([]StepDefinition, error) {
	res, err := r.Resolver(t)
	if err != nil {
		return nil, err
	}
	return res.VisibleSteps(), nil
}
