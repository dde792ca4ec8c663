package pathway

import (
	"math"
	"slices"
)

// Resolver answers visibility and navigation questions for one pathway.
// Visible steps keep master catalogue order regardless of how the pathway
// lists its ids.
type Resolver struct {
	cfg       Config
	catalogue []StepDefinition
	steps     []StepDefinition
	position  map[StepID]int
	required  map[StepID]bool
}

func newResolver(catalogue []StepDefinition, cfg Config) *Resolver {
	include := make(map[StepID]bool, len(cfg.RequiredStepIDs)+len(cfg.OptionalStepIDs))
	required := make(map[StepID]bool, len(cfg.RequiredStepIDs))
	for _, id := range cfg.RequiredStepIDs {
		include[id] = true
		required[id] = true
	}
	for _, id := range cfg.OptionalStepIDs {
		include[id] = true
	}

	r := &Resolver{
		cfg:       cfg,
		catalogue: catalogue,
		position:  make(map[StepID]int, len(include)),
		required:  required,
	}
	for _, step := range catalogue {
		if include[step.ID] {
			r.position[step.ID] = len(r.steps)
			r.steps = append(r.steps, step)
		}
	}
	return r
}

// Config returns the resolved pathway.
func (r *Resolver) Config() Config {
	return r.cfg.clone()
}

// ActivityType returns the pathway's activity type.
func (r *Resolver) ActivityType() ActivityType {
	return r.cfg.ActivityType
}

// Features returns the pathway feature flags.
func (r *Resolver) Features() Features {
	return r.cfg.Features
}

// VisibleSteps returns the ordered steps to render.
func (r *Resolver) VisibleSteps() []StepDefinition {
	return slices.Clone(r.steps)
}

// VisibleStepIDs returns the ids of VisibleSteps.
func (r *Resolver) VisibleStepIDs() []StepID {
	ids := make([]StepID, len(r.steps))
	for i, s := range r.steps {
		ids[i] = s.ID
	}
	return ids
}

func (r *Resolver) IsStepVisible(id StepID) bool {
	_, ok := r.position[id]
	return ok
}

// IsRequired reports whether a visible step is required rather than optional.
func (r *Resolver) IsRequired(id StepID) bool {
	return r.required[id]
}

// StepNumber is the 1-indexed position within the visible sequence, or 0
// when the step is not visible. 0 means "not applicable", not an error.
func (r *Resolver) StepNumber(id StepID) int {
	i, ok := r.position[id]
	if !ok {
		return 0
	}
	return i + 1
}

// TotalSteps is the number of visible steps.
func (r *Resolver) TotalSteps() int {
	return len(r.steps)
}

// FirstStepID is the first visible step.
func (r *Resolver) FirstStepID() StepID {
	if len(r.steps) == 0 {
		return ""
	}
	return r.steps[0].ID
}

// NextStepID returns the following visible step; false at the end or when
// id is not visible.
func (r *Resolver) NextStepID(id StepID) (StepID, bool) {
	i, ok := r.position[id]
	if !ok || i+1 >= len(r.steps) {
		return "", false
	}
	return r.steps[i+1].ID, true
}

// PreviousStepID returns the preceding visible step; false at the start or
// when id is not visible.
func (r *Resolver) PreviousStepID(id StepID) (StepID, bool) {
	i, ok := r.position[id]
	if !ok || i == 0 {
		return "", false
	}
	return r.steps[i-1].ID, true
}

// CompletionPercentage is round((index+1)/total*100) for a visible step and
// 0 otherwise.
func (r *Resolver) CompletionPercentage(current StepID) int {
	i, ok := r.position[current]
	if !ok || len(r.steps) == 0 {
		return 0
	}
	return int(math.Round(float64(i+1) / float64(len(r.steps)) * 100))
}

// StepsThrough returns the visible steps up to and including id. For a step
// that is not visible it returns the visible steps that precede it in the
// catalogue order.
func (r *Resolver) StepsThrough(id StepID) []StepID {
	if i, ok := r.position[id]; ok {
		out := make([]StepID, i+1)
		for j := 0; j <= i; j++ {
			out[j] = r.steps[j].ID
		}
		return out
	}
	var out []StepID
	for _, s := range r.catalogue {
		if s.ID == id {
			break
		}
		if r.IsStepVisible(s.ID) {
			out = append(out, s.ID)
		}
	}
	return out
}
