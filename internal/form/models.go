package form

import (
	"encoding/json"
	"maps"
	"slices"
)

// CollectionName names a repeating-row section.
type CollectionName string

const (
	CollectionShareholders     CollectionName = "shareholders"
	CollectionBeneficialOwners CollectionName = "beneficialOwners"
	CollectionFundingSources   CollectionName = "fundingSources"
)

// Row ceilings. AppendRow refuses to grow a collection past these.
const (
	MaxShareholders     = 15
	MaxBeneficialOwners = 15
	MaxFundingSources   = 10
)

var collectionLimits = map[CollectionName]int{
	CollectionShareholders:     MaxShareholders,
	CollectionBeneficialOwners: MaxBeneficialOwners,
	CollectionFundingSources:   MaxFundingSources,
}

// Collections lists the repeating sections in display order.
func Collections() []CollectionName {
	return []CollectionName{CollectionShareholders, CollectionBeneficialOwners, CollectionFundingSources}
}

// Limit returns the row ceiling for a collection.
func (c CollectionName) Limit() int {
	return collectionLimits[c]
}

func (c CollectionName) IsValid() bool {
	_, ok := collectionLimits[c]
	return ok
}

// Well-known scalar paths shared by the container, validation and documents.
const (
	FieldActivityType          = "activityType"
	FieldBusinessAddress       = "businessAddress"
	FieldMailingAddress        = "mailingAddress"
	FieldSameAsBusinessAddress = "sameAsBusinessAddress"
	FieldDocuments             = "documents"
)

// AddressFields is the empty address shape.
var AddressFields = []string{"line1", "line2", "city", "region", "postalCode", "country"}

// EmptyAddress returns an address object with every field blank.
func EmptyAddress() map[string]any {
	addr := make(map[string]any, len(AddressFields))
	for _, f := range AddressFields {
		addr[f] = ""
	}
	return addr
}

// Identity document kinds for shareholders.
const (
	IDTypePassport   = "passport"
	IDTypeNationalID = "national_id"
	IDTypeOther      = "other"
)

// Beneficial owner control kinds.
const (
	ControlDirect       = "direct"
	ControlIndirect     = "indirect"
	ControlVotingRights = "voting_rights"
)

// Funding source kinds.
const (
	SourceEquity           = "equity"
	SourceDebt             = "debt"
	SourceRetainedEarnings = "retained_earnings"
	SourceOther            = "other"
)

// Numeric row answers are pointers: nil means not answered yet, which is
// different from an answered 0.

// Shareholder is a direct owner of the applicant entity.
type Shareholder struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Nationality         string   `json:"nationality"`
	IDType              string   `json:"idType"`
	IDNumber            string   `json:"idNumber"`
	PercentageOwnership *float64 `json:"percentageOwnership"`
	DateAcquired        string   `json:"dateAcquired"`
}

// BeneficialOwner is a natural person with ultimate control.
type BeneficialOwner struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	ControlType       string   `json:"controlType"`
	PercentageControl *float64 `json:"percentageControl"`
	DateOfBirth       string   `json:"dateOfBirth"`
	IDDetails         string   `json:"idDetails"`
}

// FundingSource describes where the applicant's capital comes from.
type FundingSource struct {
	ID          string   `json:"id"`
	SourceType  string   `json:"sourceType"`
	Description string   `json:"description"`
	AmountUSD   *float64 `json:"amountUSD"`
}

// Number returns a pointer to v for the numeric row answers.
func Number(v float64) *float64 {
	return &v
}

// NumberValue is *p, or 0 when the answer is missing.
func NumberValue(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Draft is the full answer tree for one application: free-form nested
// fields plus the three repeating-row collections. On the wire the fields
// and collections share one JSON object.
type Draft struct {
	Fields           map[string]any
	Shareholders     []Shareholder
	BeneficialOwners []BeneficialOwner
	FundingSources   []FundingSource
}

// NewDraft returns an empty draft.
func NewDraft() Draft {
	return Draft{Fields: map[string]any{}}
}

// IsEmpty reports whether the draft has no keys at all.
func (d Draft) IsEmpty() bool {
	return len(d.Fields) == 0 &&
		len(d.Shareholders) == 0 &&
		len(d.BeneficialOwners) == 0 &&
		len(d.FundingSources) == 0
}

// Clone returns a deep copy.
func (d Draft) Clone() Draft {
	return Draft{
		Fields:           cloneMap(d.Fields),
		Shareholders:     cloneRows(d.Shareholders, func(r *Shareholder) { r.PercentageOwnership = cloneNumber(r.PercentageOwnership) }),
		BeneficialOwners: cloneRows(d.BeneficialOwners, func(r *BeneficialOwner) { r.PercentageControl = cloneNumber(r.PercentageControl) }),
		FundingSources:   cloneRows(d.FundingSources, func(r *FundingSource) { r.AmountUSD = cloneNumber(r.AmountUSD) }),
	}
}

func cloneRows[T any](rows []T, detach func(*T)) []T {
	out := slices.Clone(rows)
	for i := range out {
		detach(&out[i])
	}
	return out
}

func cloneNumber(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return Number(*p)
}

// Get reads a dotted path from a snapshot. Collection paths use the row id
// as the second segment.
func (d Draft) Get(path string) (any, bool) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, false
	}
	if c := CollectionName(segs[0]); c.IsValid() {
		return d.rowValue(c, segs[1:])
	}
	return lookup(d.Fields, segs)
}

// String returns the string at path, or "" when absent or not a string.
func (d Draft) String(path string) string {
	v, _ := d.Get(path)
	s, _ := v.(string)
	return s
}

// ActivityType returns the raw activity type field.
func (d Draft) ActivityType() string {
	return d.String(FieldActivityType)
}

// FundingTotal is the derived sum of funding amounts.
func (d Draft) FundingTotal() float64 {
	var total float64
	for _, f := range d.FundingSources {
		total += NumberValue(f.AmountUSD)
	}
	return total
}

func (d Draft) rowValue(c CollectionName, segs []string) (any, bool) {
	rows, err := d.rowMaps(c)
	if err != nil {
		return nil, false
	}
	if len(segs) == 0 {
		return rows, true
	}
	for _, row := range rows {
		if row["id"] == segs[0] {
			if len(segs) == 1 {
				return row, true
			}
			return lookup(row, segs[1:])
		}
	}
	return nil, false
}

// Rows renders a collection as generic maps keyed by JSON field name.
func (d Draft) Rows(c CollectionName) []map[string]any {
	rows, err := d.rowMaps(c)
	if err != nil {
		return nil
	}
	return rows
}

// rowMaps renders a collection as generic maps.
func (d Draft) rowMaps(c CollectionName) ([]map[string]any, error) {
	var src any
	switch c {
	case CollectionShareholders:
		src = d.Shareholders
	case CollectionBeneficialOwners:
		src = d.BeneficialOwners
	case CollectionFundingSources:
		src = d.FundingSources
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// MarshalJSON flattens fields and collections into one object. Empty
// collections are omitted so a blank draft encodes as {}.
func (d Draft) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Fields)+3)
	maps.Copy(out, d.Fields)
	if len(d.Shareholders) > 0 {
		out[string(CollectionShareholders)] = d.Shareholders
	}
	if len(d.BeneficialOwners) > 0 {
		out[string(CollectionBeneficialOwners)] = d.BeneficialOwners
	}
	if len(d.FundingSources) > 0 {
		out[string(CollectionFundingSources)] = d.FundingSources
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the collections out of the flat object.
func (d *Draft) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	next := Draft{Fields: make(map[string]any, len(raw))}
	for key, value := range raw {
		var err error
		switch CollectionName(key) {
		case CollectionShareholders:
			err = json.Unmarshal(value, &next.Shareholders)
		case CollectionBeneficialOwners:
			err = json.Unmarshal(value, &next.BeneficialOwners)
		case CollectionFundingSources:
			err = json.Unmarshal(value, &next.FundingSources)
		default:
			var v any
			err = json.Unmarshal(value, &v)
			next.Fields[key] = v
		}
		if err != nil {
			return err
		}
	}
	*d = next
	return nil
}
