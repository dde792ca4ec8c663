package pathway

import (
	"slices"

	dErrors "intake/pkg/domain-errors"
)

// ActivityType is the regulated activity an applicant selects up front.
// Invariant: one of the five values below.
type ActivityType string

const (
	ActivityFinancialServices    ActivityType = "financial_services"
	ActivityVirtualAssetServices ActivityType = "virtual_asset_services"
	ActivityTokenIssuance        ActivityType = "token_issuance"
	ActivityPaymentServices      ActivityType = "payment_services"
	ActivityInnovationSandbox    ActivityType = "innovation_sandbox"
)

var validActivityTypes = map[ActivityType]bool{
	ActivityFinancialServices:    true,
	ActivityVirtualAssetServices: true,
	ActivityTokenIssuance:        true,
	ActivityPaymentServices:      true,
	ActivityInnovationSandbox:    true,
}

// ParseActivityType validates external input against the closed set.
func ParseActivityType(s string) (ActivityType, error) {
	t := ActivityType(s)
	if !t.IsValid() {
		return "", dErrors.Wrap(ErrUnknownActivityType, dErrors.CodeConfiguration, "unknown activity type: "+s)
	}
	return t, nil
}

func (t ActivityType) IsValid() bool {
	return validActivityTypes[t]
}

func (t ActivityType) String() string {
	return string(t)
}

// StepID identifies a step in the master catalogue.
type StepID string

const (
	StepWelcome              StepID = "welcome"
	StepBasicInfo            StepID = "basic_info"
	StepEntityStructure      StepID = "entity_structure"
	StepShareholding         StepID = "shareholding"
	StepBeneficialOwnership  StepID = "beneficial_ownership"
	StepFinancialInfo        StepID = "financial_info"
	StepRegulatoryCompliance StepID = "regulatory_compliance"
	StepDocuments            StepID = "documents"
	StepReview               StepID = "review"
)

// DocumentID identifies a document type in the document catalogue.
type DocumentID string

// StepDefinition is fixed at build time.
type StepDefinition struct {
	ID       StepID `yaml:"id" json:"id"`
	Title    string `yaml:"title" json:"title"`
	Subtitle string `yaml:"subtitle" json:"subtitle"`
}

// DocumentDefinition is a catalogue entry for a document type.
type DocumentDefinition struct {
	ID    DocumentID `yaml:"id" json:"id"`
	Label string     `yaml:"label" json:"label"`
}

// Features are the pathway flags that switch conditional requirements on.
type Features struct {
	ComplianceOfficerRequired bool `yaml:"complianceOfficerRequired" json:"complianceOfficerRequired"`
	MLRORequired              bool `yaml:"mlroRequired" json:"mlroRequired"`
	CustodyDisclosureRequired bool `yaml:"custodyDisclosureRequired" json:"custodyDisclosureRequired"`
	TokenDetailsRequired      bool `yaml:"tokenDetailsRequired" json:"tokenDetailsRequired"`
}

// Config is the immutable definition of one pathway.
//
// Invariants (checked at load):
//   - RequiredStepIDs and OptionalStepIDs are disjoint
//   - every step and document id exists in the catalogues
type Config struct {
	ActivityType        ActivityType `yaml:"activityType" json:"activityType"`
	Letter              string       `yaml:"letter" json:"pathwayLetter"`
	Name                string       `yaml:"name" json:"name"`
	RequiredStepIDs     []StepID     `yaml:"requiredSteps" json:"requiredStepIds"`
	OptionalStepIDs     []StepID     `yaml:"optionalSteps" json:"optionalStepIds"`
	Features            Features     `yaml:"features" json:"features"`
	QuestionCount       int          `yaml:"questionCount" json:"questionCount"`
	EstimatedMinutes    int          `yaml:"estimatedMinutes" json:"estimatedMinutes"`
	RequiredDocumentIDs []DocumentID `yaml:"requiredDocuments" json:"requiredDocumentIds"`
	OptionalDocumentIDs []DocumentID `yaml:"optionalDocuments" json:"optionalDocumentIds"`
}

func (c Config) clone() Config {
	c.RequiredStepIDs = slices.Clone(c.RequiredStepIDs)
	c.OptionalStepIDs = slices.Clone(c.OptionalStepIDs)
	c.RequiredDocumentIDs = slices.Clone(c.RequiredDocumentIDs)
	c.OptionalDocumentIDs = slices.Clone(c.OptionalDocumentIDs)
	return c
}
