package validation

import (
	"intake/internal/form"
	"intake/internal/pathway"
)

// FieldRule describes one scalar field. AppliesWhen gates the rule on the
// pathway's features; a rule that does not apply is skipped entirely, so
// values left behind by an earlier pathway produce no errors.
type FieldRule struct {
	Path        string
	Step        pathway.StepID
	Label       string
	Required    bool
	AppliesWhen func(pathway.Features) bool
	Check       Check
}

func (r FieldRule) applies(f pathway.Features) bool {
	return r.AppliesWhen == nil || r.AppliesWhen(f)
}

// RowRule describes one field of every row in a collection.
type RowRule struct {
	Collection form.CollectionName
	Field      string
	Label      string
	Required   bool
	Check      Check
}

// collectionSteps binds each repeating section to the step that edits it.
var collectionSteps = map[form.CollectionName]pathway.StepID{
	form.CollectionShareholders:     pathway.StepShareholding,
	form.CollectionBeneficialOwners: pathway.StepBeneficialOwnership,
	form.CollectionFundingSources:   pathway.StepFinancialInfo,
}

// Entity legal forms.
var EntityTypes = []string{
	"private_company",
	"public_company",
	"limited_partnership",
	"llc",
	"foundation",
	"branch",
}

func complianceOfficer(f pathway.Features) bool { return f.ComplianceOfficerRequired }
func mlro(f pathway.Features) bool              { return f.MLRORequired }
func custody(f pathway.Features) bool           { return f.CustodyDisclosureRequired }
func tokenDetails(f pathway.Features) bool      { return f.TokenDetailsRequired }

// DefaultFieldRules is the scalar rule table for every pathway.
func DefaultFieldRules() []FieldRule {
	return []FieldRule{
		// basic_info
		{Path: "legalEntityName", Step: pathway.StepBasicInfo, Label: "Legal entity name", Required: true},
		{Path: "tradingName", Step: pathway.StepBasicInfo, Label: "Trading name"},
		{Path: "registrationNumber", Step: pathway.StepBasicInfo, Label: "Registration number", Required: true},
		{Path: "incorporationDate", Step: pathway.StepBasicInfo, Label: "Incorporation date", Required: true, Check: PastDate()},
		{Path: "contactEmail", Step: pathway.StepBasicInfo, Label: "Contact email", Required: true, Check: Email()},
		{Path: "contactPhone", Step: pathway.StepBasicInfo, Label: "Contact phone", Required: true},
		{Path: "businessAddress.line1", Step: pathway.StepBasicInfo, Label: "Business address line 1", Required: true},
		{Path: "businessAddress.city", Step: pathway.StepBasicInfo, Label: "Business address city", Required: true},
		{Path: "businessAddress.country", Step: pathway.StepBasicInfo, Label: "Business address country", Required: true},

		// entity_structure
		{Path: "entityType", Step: pathway.StepEntityStructure, Label: "Entity type", Required: true, Check: OneOf(EntityTypes...)},
		{Path: "jurisdiction", Step: pathway.StepEntityStructure, Label: "Jurisdiction of incorporation", Required: true},
		{Path: "numberOfEmployees", Step: pathway.StepEntityStructure, Label: "Number of employees", Check: NonNegative()},

		// financial_info
		{Path: "authorisedCapital", Step: pathway.StepFinancialInfo, Label: "Authorised capital", Required: true, Check: NonNegative()},
		{Path: "paidUpCapital", Step: pathway.StepFinancialInfo, Label: "Paid-up capital", Required: true, Check: NonNegative()},
		{Path: "projectedRevenueYear1", Step: pathway.StepFinancialInfo, Label: "Projected first-year revenue", Check: NonNegative()},

		// regulatory_compliance
		{Path: "complianceOfficer.name", Step: pathway.StepRegulatoryCompliance, Label: "Compliance officer name", Required: true, AppliesWhen: complianceOfficer},
		{Path: "complianceOfficer.email", Step: pathway.StepRegulatoryCompliance, Label: "Compliance officer email", Required: true, AppliesWhen: complianceOfficer, Check: Email()},
		{Path: "mlro.name", Step: pathway.StepRegulatoryCompliance, Label: "MLRO name", Required: true, AppliesWhen: mlro},
		{Path: "mlro.email", Step: pathway.StepRegulatoryCompliance, Label: "MLRO email", Required: true, AppliesWhen: mlro, Check: Email()},
		{Path: "mlro.phone", Step: pathway.StepRegulatoryCompliance, Label: "MLRO phone", Required: true, AppliesWhen: mlro},
		{Path: "custodyArrangements", Step: pathway.StepRegulatoryCompliance, Label: "Custody arrangements", Required: true, AppliesWhen: custody},
		{Path: "token.name", Step: pathway.StepRegulatoryCompliance, Label: "Token name", Required: true, AppliesWhen: tokenDetails},
		{Path: "token.symbol", Step: pathway.StepRegulatoryCompliance, Label: "Token symbol", Required: true, AppliesWhen: tokenDetails},
		{Path: "token.totalSupply", Step: pathway.StepRegulatoryCompliance, Label: "Token total supply", Required: true, AppliesWhen: tokenDetails, Check: NonNegative()},
		{Path: "sanctionsDeclaration", Step: pathway.StepRegulatoryCompliance, Label: "Sanctions declaration", Required: true, Check: MustBeTrue()},

		// review
		{Path: "declaration.accepted", Step: pathway.StepReview, Label: "Declaration", Required: true, Check: MustBeTrue()},
		{Path: "declaration.signatoryName", Step: pathway.StepReview, Label: "Signatory name", Required: true},
	}
}

// DefaultRowRules is the per-row rule table for the repeating sections.
func DefaultRowRules() []RowRule {
	return []RowRule{
		{Collection: form.CollectionShareholders, Field: "name", Label: "Shareholder name", Required: true},
		{Collection: form.CollectionShareholders, Field: "nationality", Label: "Nationality", Required: true},
		{Collection: form.CollectionShareholders, Field: "idType", Label: "ID type", Required: true,
			Check: OneOf(form.IDTypePassport, form.IDTypeNationalID, form.IDTypeOther)},
		{Collection: form.CollectionShareholders, Field: "idNumber", Label: "ID number", Required: true},
		{Collection: form.CollectionShareholders, Field: "percentageOwnership", Label: "Ownership percentage", Required: true, Check: Percent()},
		{Collection: form.CollectionShareholders, Field: "dateAcquired", Label: "Date acquired", Required: true, Check: PastDate()},

		{Collection: form.CollectionBeneficialOwners, Field: "name", Label: "Beneficial owner name", Required: true},
		{Collection: form.CollectionBeneficialOwners, Field: "controlType", Label: "Control type", Required: true,
			Check: OneOf(form.ControlDirect, form.ControlIndirect, form.ControlVotingRights)},
		{Collection: form.CollectionBeneficialOwners, Field: "percentageControl", Label: "Control percentage", Required: true, Check: Percent()},
		{Collection: form.CollectionBeneficialOwners, Field: "dateOfBirth", Label: "Date of birth", Required: true, Check: PastDate()},
		{Collection: form.CollectionBeneficialOwners, Field: "idDetails", Label: "ID details", Required: true},

		{Collection: form.CollectionFundingSources, Field: "sourceType", Label: "Funding source type", Required: true,
			Check: OneOf(form.SourceEquity, form.SourceDebt, form.SourceRetainedEarnings, form.SourceOther)},
		{Collection: form.CollectionFundingSources, Field: "description", Label: "Funding description", Required: true},
		{Collection: form.CollectionFundingSources, Field: "amountUSD", Label: "Funding amount", Required: true, Check: NonNegative()},
	}
}
