// Package validation evaluates a draft against the field, row and aggregate
// rules of its pathway. Results are data; nothing here returns an error.
package validation

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"intake/internal/documents"
	"intake/internal/form"
	"intake/internal/pathway"
)

// Result lists per-field messages keyed by field path plus messages for
// rules that span rows.
type Result struct {
	FieldErrors     map[string]string `json:"fieldErrors"`
	AggregateErrors []string          `json:"aggregateErrors"`
}

func newResult() Result {
	return Result{FieldErrors: map[string]string{}, AggregateErrors: []string{}}
}

// Valid reports whether there is nothing to fix.
func (r Result) Valid() bool {
	return len(r.FieldErrors) == 0 && len(r.AggregateErrors) == 0
}

// Paths returns the failing field paths in sorted order.
func (r Result) Paths() []string {
	return slices.Sorted(maps.Keys(r.FieldErrors))
}

// Summary joins every message into one line.
func (r Result) Summary() string {
	parts := make([]string, 0, len(r.FieldErrors)+len(r.AggregateErrors))
	for _, p := range r.Paths() {
		parts = append(parts, fmt.Sprintf("%s: %s", p, r.FieldErrors[p]))
	}
	parts = append(parts, r.AggregateErrors...)
	return strings.Join(parts, "; ")
}

func (r *Result) fieldError(path, msg string) {
	if _, exists := r.FieldErrors[path]; !exists {
		r.FieldErrors[path] = msg
	}
}

// DocumentRequirements resolves document slots for a pathway.
type DocumentRequirements interface {
	Requirements(t pathway.ActivityType) ([]documents.Requirement, error)
}

// Validator holds the rule tables. It keeps no per-draft state and is safe
// for concurrent use.
type Validator struct {
	registry  *pathway.Registry
	documents DocumentRequirements
	now       func() time.Time
	fields    []FieldRule
	rows      []RowRule
}

type Option func(*Validator)

// WithClock pins "today" for date checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// WithRules replaces the default rule tables.
func WithRules(fields []FieldRule, rows []RowRule) Option {
	return func(v *Validator) {
		v.fields = fields
		v.rows = rows
	}
}

// New builds a validator. docs may be nil, in which case document
// completeness is not checked.
func New(registry *pathway.Registry, docs DocumentRequirements, opts ...Option) *Validator {
	v := &Validator{
		registry:  registry,
		documents: docs,
		now:       time.Now,
		fields:    DefaultFieldRules(),
		rows:      DefaultRowRules(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateStep checks the steps at or before step on the draft's pathway.
func (v *Validator) ValidateStep(d form.Draft, step pathway.StepID) Result {
	resolver, res, ok := v.resolve(d)
	if !ok {
		return res
	}
	return v.run(d, resolver, resolver.StepsThrough(step))
}

// ValidateAll checks every visible step on the draft's pathway.
func (v *Validator) ValidateAll(d form.Draft) Result {
	resolver, res, ok := v.resolve(d)
	if !ok {
		return res
	}
	return v.run(d, resolver, resolver.VisibleStepIDs())
}

// StepOf reports which step owns a field path, or "" if none does.
func (v *Validator) StepOf(path string) pathway.StepID {
	if path == form.FieldActivityType {
		return pathway.StepWelcome
	}
	head, _, _ := strings.Cut(path, ".")
	if step, ok := collectionSteps[form.CollectionName(head)]; ok {
		return step
	}
	if head == form.FieldDocuments {
		return pathway.StepDocuments
	}
	for _, r := range v.fields {
		if r.Path == path {
			return r.Step
		}
	}
	return ""
}

func (v *Validator) resolve(d form.Draft) (*pathway.Resolver, Result, bool) {
	res := newResult()
	raw := d.ActivityType()
	if raw == "" {
		res.fieldError(form.FieldActivityType, "Activity type is required")
		return nil, res, false
	}
	t, err := pathway.ParseActivityType(raw)
	if err != nil {
		res.fieldError(form.FieldActivityType, fmt.Sprintf("Activity type %q is not a recognised licence pathway", raw))
		return nil, res, false
	}
	resolver, err := v.registry.Resolver(t)
	if err != nil {
		res.fieldError(form.FieldActivityType, fmt.Sprintf("Activity type %q is not a recognised licence pathway", raw))
		return nil, res, false
	}
	return resolver, res, true
}

func (v *Validator) run(d form.Draft, resolver *pathway.Resolver, scope []pathway.StepID) Result {
	res := newResult()
	now := v.now()
	features := resolver.Features()
	inScope := make(map[pathway.StepID]bool, len(scope))
	for _, id := range scope {
		inScope[id] = true
	}

	for _, rule := range v.fields {
		if !inScope[rule.Step] || !rule.applies(features) {
			continue
		}
		value, _ := d.Get(rule.Path)
		if !form.HasValue(value) {
			if rule.Required && resolver.IsRequired(rule.Step) {
				res.fieldError(rule.Path, rule.Label+" is required")
			}
			continue
		}
		if rule.Check != nil {
			if msg := rule.Check(value, now); msg != "" {
				res.fieldError(rule.Path, rule.Label+" "+msg)
			}
		}
	}

	for _, coll := range form.Collections() {
		if !inScope[collectionSteps[coll]] {
			continue
		}
		v.checkRows(&res, d, coll, now)
	}

	v.checkAggregates(&res, d, resolver, inScope)
	v.checkDocuments(&res, d, resolver, inScope)
	return res
}

// checkRows applies row rules to every row that exists. An added row must
// be complete even on an optional step.
func (v *Validator) checkRows(res *Result, d form.Draft, coll form.CollectionName, now time.Time) {
	for _, row := range d.Rows(coll) {
		id, _ := row["id"].(string)
		for _, rule := range v.rows {
			if rule.Collection != coll {
				continue
			}
			path := fmt.Sprintf("%s.%s.%s", coll, id, rule.Field)
			value := row[rule.Field]
			if !form.HasValue(value) {
				if rule.Required {
					res.fieldError(path, rule.Label+" is required")
				}
				continue
			}
			if rule.Check != nil {
				if msg := rule.Check(value, now); msg != "" {
					res.fieldError(path, rule.Label+" "+msg)
				}
			}
		}
	}
}

func (v *Validator) checkAggregates(res *Result, d form.Draft, resolver *pathway.Resolver, inScope map[pathway.StepID]bool) {
	if inScope[pathway.StepShareholding] {
		n := len(d.Shareholders)
		switch {
		case n == 0 && resolver.IsRequired(pathway.StepShareholding):
			res.AggregateErrors = append(res.AggregateErrors, "at least one shareholder is required")
		case n > 0:
			if total := ShareholderTotal(d); !TotalIsComplete(total) {
				res.AggregateErrors = append(res.AggregateErrors, ownershipMessage("shareholder ownership", total))
			}
		}
		if n > form.MaxShareholders {
			res.AggregateErrors = append(res.AggregateErrors, ceilingMessage(form.CollectionShareholders, n))
		}
	}

	if inScope[pathway.StepBeneficialOwnership] {
		n := len(d.BeneficialOwners)
		if n > 0 {
			if total := BeneficialOwnerTotal(d); !TotalIsComplete(total) {
				res.AggregateErrors = append(res.AggregateErrors, ownershipMessage("beneficial owner control", total))
			}
		}
		if n > form.MaxBeneficialOwners {
			res.AggregateErrors = append(res.AggregateErrors, ceilingMessage(form.CollectionBeneficialOwners, n))
		}
	}

	if inScope[pathway.StepFinancialInfo] {
		if n := len(d.FundingSources); n > form.MaxFundingSources {
			res.AggregateErrors = append(res.AggregateErrors, ceilingMessage(form.CollectionFundingSources, n))
		}
	}
}

func (v *Validator) checkDocuments(res *Result, d form.Draft, resolver *pathway.Resolver, inScope map[pathway.StepID]bool) {
	if v.documents == nil || !inScope[pathway.StepDocuments] {
		return
	}
	reqs, err := v.documents.Requirements(resolver.ActivityType())
	if err != nil {
		res.fieldError(form.FieldActivityType, err.Error())
		return
	}
	for _, missing := range documents.Missing(reqs, d) {
		res.fieldError(missing.FieldPath, missing.Label+" is required")
	}
}
