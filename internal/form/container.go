// Package form holds the in-progress answer tree for one onboarding session.
package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/sentinel"
)

// Container owns one Draft for the lifetime of a session. It is safe for
// concurrent use: saves read snapshots from other goroutines while the
// session keeps editing.
type Container struct {
	mu      sync.RWMutex
	draft   Draft
	version uint64
	changes chan struct{}
	clock   func() time.Time
	suffix  func() string
}

type Option func(*Container)

// WithClock sets the clock used for row id timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Container) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithRowSuffix sets the random suffix generator for row ids.
func WithRowSuffix(suffix func() string) Option {
	return func(c *Container) {
		if suffix != nil {
			c.suffix = suffix
		}
	}
}

// New returns an empty container.
func New(opts ...Option) *Container {
	return NewFromDraft(NewDraft(), opts...)
}

// NewFromDraft returns a container seeded with a copy of d.
func NewFromDraft(d Draft, opts ...Option) *Container {
	c := &Container{
		draft:   d.Clone(),
		changes: make(chan struct{}, 1),
		clock:   time.Now,
		suffix:  randomSuffix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Snapshot returns a deep copy of the current draft.
func (c *Container) Snapshot() Draft {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.draft.Clone()
}

// Version increases on every mutation.
func (c *Container) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Changes delivers a coalesced signal after mutations. A burst of edits
// produces at most one pending signal.
func (c *Container) Changes() <-chan struct{} {
	return c.changes
}

// IsEmpty reports whether the draft holds no keys.
func (c *Container) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.draft.IsEmpty()
}

// markDirty must be called with mu held for writing.
func (c *Container) markDirty() {
	c.version++
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Get reads a dotted path, e.g. "businessAddress.line1" or
// "shareholders.<rowID>.name".
func (c *Container) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.draft.Get(path)
	return cloneValue(v), ok
}

// Set writes a dotted path. Row fields are addressed by stable row id.
func (c *Container) Set(path string, value any) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid field path %q", path))
	}
	if path == FieldSameAsBusinessAddress {
		same, ok := value.(bool)
		if !ok {
			return dErrors.New(dErrors.CodeBadRequest, "sameAsBusinessAddress must be a boolean")
		}
		c.SetSameAsBusinessAddress(same)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if coll := CollectionName(segs[0]); coll.IsValid() {
		if len(segs) != 3 {
			return dErrors.New(dErrors.CodeBadRequest,
				fmt.Sprintf("path %q must address a row field as %s.<rowID>.<field>", path, coll))
		}
		if err := c.setRowField(coll, segs[1], segs[2], value); err != nil {
			return err
		}
		c.markDirty()
		return nil
	}

	if c.draft.Fields == nil {
		c.draft.Fields = map[string]any{}
	}
	if err := assign(c.draft.Fields, segs, value); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "cannot set field")
	}
	c.markDirty()
	return nil
}

// Delete removes a scalar path. Deleting an absent path is a no-op.
func (c *Container) Delete(path string) {
	segs := splitPath(path)
	if len(segs) == 0 || CollectionName(segs[0]).IsValid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	parent := c.draft.Fields
	for _, seg := range segs[:len(segs)-1] {
		child, ok := parent[seg].(map[string]any)
		if !ok {
			return
		}
		parent = child
	}
	last := segs[len(segs)-1]
	if _, ok := parent[last]; !ok {
		return
	}
	delete(parent, last)
	c.markDirty()
}

// SetSameAsBusinessAddress copies the business address into the mailing
// address when true. The copy is a snapshot: later business address edits
// do not flow through. false resets the mailing address to the empty shape.
func (c *Container) SetSameAsBusinessAddress(same bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft.Fields == nil {
		c.draft.Fields = map[string]any{}
	}
	c.draft.Fields[FieldSameAsBusinessAddress] = same
	if same {
		business, _ := c.draft.Fields[FieldBusinessAddress].(map[string]any)
		mailing := EmptyAddress()
		for k, v := range business {
			mailing[k] = cloneValue(v)
		}
		c.draft.Fields[FieldMailingAddress] = mailing
	} else {
		c.draft.Fields[FieldMailingAddress] = EmptyAddress()
	}
	c.markDirty()
}

// AppendRow adds a row seeded with defaults and returns its id. Appending
// past the collection ceiling fails and leaves the collection unchanged.
func (c *Container) AppendRow(coll CollectionName, defaults map[string]any) (string, error) {
	if !coll.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown collection %q", coll))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if n := c.countLocked(coll); n >= coll.Limit() {
		return "", dErrors.Wrap(sentinel.ErrLimitExceeded, dErrors.CodeLimitExceeded,
			fmt.Sprintf("%s: at most %d rows allowed", coll, coll.Limit()))
	}

	row := make(map[string]any, len(defaults)+1)
	for k, v := range defaults {
		row[k] = v
	}
	id := fmt.Sprintf("%d-%s", c.clock().UnixMilli(), c.suffix())
	row["id"] = id

	switch coll {
	case CollectionShareholders:
		var r Shareholder
		if err := decodeRow(row, &r); err != nil {
			return "", err
		}
		c.draft.Shareholders = append(c.draft.Shareholders, r)
	case CollectionBeneficialOwners:
		var r BeneficialOwner
		if err := decodeRow(row, &r); err != nil {
			return "", err
		}
		c.draft.BeneficialOwners = append(c.draft.BeneficialOwners, r)
	case CollectionFundingSources:
		var r FundingSource
		if err := decodeRow(row, &r); err != nil {
			return "", err
		}
		c.draft.FundingSources = append(c.draft.FundingSources, r)
	}
	c.markDirty()
	return id, nil
}

// RemoveRow deletes the row at index.
func (c *Container) RemoveRow(coll CollectionName, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.countLocked(coll)
	if index < 0 || index >= n {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("%s: no row at index %d", coll, index))
	}
	switch coll {
	case CollectionShareholders:
		c.draft.Shareholders = slices.Delete(c.draft.Shareholders, index, index+1)
	case CollectionBeneficialOwners:
		c.draft.BeneficialOwners = slices.Delete(c.draft.BeneficialOwners, index, index+1)
	case CollectionFundingSources:
		c.draft.FundingSources = slices.Delete(c.draft.FundingSources, index, index+1)
	}
	c.markDirty()
	return nil
}

// RemoveRowByID deletes the row with the given stable id.
func (c *Container) RemoveRowByID(coll CollectionName, id string) error {
	c.mu.RLock()
	index := c.indexLocked(coll, id)
	c.mu.RUnlock()
	if index < 0 {
		return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, fmt.Sprintf("%s: row %q not found", coll, id))
	}
	return c.RemoveRow(coll, index)
}

// ListRows returns the rows of a collection as generic maps, in order.
func (c *Container) ListRows(coll CollectionName) []map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows, err := c.draft.rowMaps(coll)
	if err != nil {
		return nil
	}
	return rows
}

// Shareholders returns a copy of the shareholder rows.
func (c *Container) Shareholders() []Shareholder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.draft.Shareholders)
}

// BeneficialOwners returns a copy of the beneficial owner rows.
func (c *Container) BeneficialOwners() []BeneficialOwner {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.draft.BeneficialOwners)
}

// FundingSources returns a copy of the funding source rows.
func (c *Container) FundingSources() []FundingSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.draft.FundingSources)
}

// FundingTotal is the derived sum of funding amounts.
func (c *Container) FundingTotal() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.draft.FundingTotal()
}

// Merge folds a loaded draft into the container without overwriting
// anything already answered in this session. Loaded collections are adopted
// only when the local collection is empty.
func (c *Container) Merge(loaded Draft) {
	if loaded.IsEmpty() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft.Fields == nil {
		c.draft.Fields = map[string]any{}
	}
	mergeMissing(c.draft.Fields, loaded.Fields)
	if len(c.draft.Shareholders) == 0 {
		c.draft.Shareholders = slices.Clone(loaded.Shareholders)
	}
	if len(c.draft.BeneficialOwners) == 0 {
		c.draft.BeneficialOwners = slices.Clone(loaded.BeneficialOwners)
	}
	if len(c.draft.FundingSources) == 0 {
		c.draft.FundingSources = slices.Clone(loaded.FundingSources)
	}
	c.markDirty()
}

func (c *Container) countLocked(coll CollectionName) int {
	switch coll {
	case CollectionShareholders:
		return len(c.draft.Shareholders)
	case CollectionBeneficialOwners:
		return len(c.draft.BeneficialOwners)
	case CollectionFundingSources:
		return len(c.draft.FundingSources)
	}
	return 0
}

func (c *Container) indexLocked(coll CollectionName, id string) int {
	switch coll {
	case CollectionShareholders:
		return slices.IndexFunc(c.draft.Shareholders, func(r Shareholder) bool { return r.ID == id })
	case CollectionBeneficialOwners:
		return slices.IndexFunc(c.draft.BeneficialOwners, func(r BeneficialOwner) bool { return r.ID == id })
	case CollectionFundingSources:
		return slices.IndexFunc(c.draft.FundingSources, func(r FundingSource) bool { return r.ID == id })
	}
	return -1
}

func (c *Container) setRowField(coll CollectionName, id, field string, value any) error {
	if field == "id" {
		return dErrors.New(dErrors.CodeBadRequest, "row ids are immutable")
	}
	index := c.indexLocked(coll, id)
	if index < 0 {
		return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, fmt.Sprintf("%s: row %q not found", coll, id))
	}

	rows, err := c.draft.rowMaps(coll)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode rows")
	}
	row := rows[index]
	row[field] = value

	switch coll {
	case CollectionShareholders:
		var r Shareholder
		if err := decodeRow(row, &r); err != nil {
			return err
		}
		c.draft.Shareholders[index] = r
	case CollectionBeneficialOwners:
		var r BeneficialOwner
		if err := decodeRow(row, &r); err != nil {
			return err
		}
		c.draft.BeneficialOwners[index] = r
	case CollectionFundingSources:
		var r FundingSource
		if err := decodeRow(row, &r); err != nil {
			return err
		}
		c.draft.FundingSources[index] = r
	}
	return nil
}

// decodeRow converts a generic row into its typed form, rejecting unknown
// fields and mistyped values.
func decodeRow(row map[string]any, dst any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid row value")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid row value")
	}
	return nil
}
