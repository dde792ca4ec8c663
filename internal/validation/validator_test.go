package validation

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"intake/internal/documents"
	"intake/internal/form"
	"intake/internal/pathway"
	"intake/internal/validation/validationtest"
)

type ValidatorSuite struct {
	suite.Suite
	validator *Validator
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) SetupTest() {
	registry := pathway.Default()
	now := time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)
	s.validator = New(registry, documents.NewResolver(registry), WithClock(func() time.Time { return now }))
}

func (s *ValidatorSuite) draft(t pathway.ActivityType) form.Draft {
	return validationtest.CompleteDraft(t)
}

func (s *ValidatorSuite) hasPrefix(errs map[string]string, prefix string) bool {
	for path := range errs {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (s *ValidatorSuite) TestCompleteDraftsAreValid() {
	for _, t := range pathway.Default().ActivityTypes() {
		s.Run(string(t), func() {
			res := s.validator.ValidateAll(s.draft(t))
			s.True(res.Valid(), res.Summary())
		})
	}
}

func (s *ValidatorSuite) TestActivityType() {
	s.Run("missing", func() {
		res := s.validator.ValidateAll(form.NewDraft())
		s.Equal(map[string]string{"activityType": "Activity type is required"}, res.FieldErrors)
	})
	s.Run("unknown", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Fields["activityType"] = "crypto_casino"
		res := s.validator.ValidateAll(d)
		s.Len(res.FieldErrors, 1)
		s.Contains(res.FieldErrors["activityType"], "crypto_casino")
	})
}

func (s *ValidatorSuite) TestFieldRules() {
	s.Run("missing required field", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Fields["legalEntityName"] = "  "
		res := s.validator.ValidateAll(d)
		s.Equal("Legal entity name is required", res.FieldErrors["legalEntityName"])
	})

	s.Run("nested required field", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Fields["businessAddress"].(map[string]any)["city"] = ""
		res := s.validator.ValidateAll(d)
		s.Contains(res.FieldErrors, "businessAddress.city")
	})

	s.Run("email format", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Fields["contactEmail"] = "compliance at harbour"
		res := s.validator.ValidateAll(d)
		s.Equal("Contact email must be a valid email address", res.FieldErrors["contactEmail"])
	})

	s.Run("incorporation date in the future", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Fields["incorporationDate"] = "2026-06-02"
		res := s.validator.ValidateAll(d)
		s.Equal("Incorporation date cannot be in the future", res.FieldErrors["incorporationDate"])

		d.Fields["incorporationDate"] = "2026-06-01"
		s.NotContains(s.validator.ValidateAll(d).FieldErrors, "incorporationDate")
	})

	s.Run("malformed date", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Fields["incorporationDate"] = "14/03/2019"
		res := s.validator.ValidateAll(d)
		s.Contains(res.FieldErrors["incorporationDate"], "YYYY-MM-DD")
	})

	s.Run("negative capital", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Fields["paidUpCapital"] = -1.0
		res := s.validator.ValidateAll(d)
		s.Equal("Paid-up capital must be zero or more", res.FieldErrors["paidUpCapital"])
	})

	s.Run("zero capital is an answer", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Fields["paidUpCapital"] = 0
		s.NotContains(s.validator.ValidateAll(d).FieldErrors, "paidUpCapital")
	})

	s.Run("declaration must be accepted", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Fields["declaration"].(map[string]any)["accepted"] = false
		res := s.validator.ValidateAll(d)
		s.Equal("Declaration must be accepted", res.FieldErrors["declaration.accepted"])
	})
}

func (s *ValidatorSuite) TestRowRules() {
	d := s.draft(pathway.ActivityFinancialServices)
	d.Shareholders[0].PercentageOwnership = form.Number(160)
	d.Shareholders[1].PercentageOwnership = form.Number(-60)
	d.Shareholders[1].IDNumber = ""
	d.BeneficialOwners[0].DateOfBirth = "2030-01-01"
	d.FundingSources[0].AmountUSD = form.Number(-5)

	res := s.validator.ValidateAll(d)
	s.Equal("Ownership percentage must be between 0 and 100", res.FieldErrors["shareholders.sh-1.percentageOwnership"])
	s.Equal("Ownership percentage must be between 0 and 100", res.FieldErrors["shareholders.sh-2.percentageOwnership"])
	s.Equal("ID number is required", res.FieldErrors["shareholders.sh-2.idNumber"])
	s.Equal("Date of birth cannot be in the future", res.FieldErrors["beneficialOwners.bo-1.dateOfBirth"])
	s.Equal("Funding amount must be zero or more", res.FieldErrors["fundingSources.fs-1.amountUSD"])
}

func (s *ValidatorSuite) TestUnansweredNumbersAreRequired() {
	d := s.draft(pathway.ActivityFinancialServices)
	d.Shareholders[1].PercentageOwnership = nil
	d.BeneficialOwners[0].PercentageControl = nil
	d.FundingSources = append(d.FundingSources, form.FundingSource{ID: "fs-2", SourceType: form.SourceEquity, Description: "Top-up"})

	res := s.validator.ValidateAll(d)
	s.Equal("Ownership percentage is required", res.FieldErrors["shareholders.sh-2.percentageOwnership"])
	s.Equal("Control percentage is required", res.FieldErrors["beneficialOwners.bo-1.percentageControl"])
	s.Equal("Funding amount is required", res.FieldErrors["fundingSources.fs-2.amountUSD"])
	s.NotContains(res.FieldErrors, "fundingSources.fs-1.amountUSD")

	s.Run("an answered zero is a value", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.FundingSources[0].AmountUSD = form.Number(0)
		res := s.validator.ValidateAll(d)
		s.NotContains(res.FieldErrors, "fundingSources.fs-1.amountUSD")
	})
}

func (s *ValidatorSuite) TestOwnershipTotals() {
	s.Run("99.99 is not 100", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Shareholders[0].PercentageOwnership = form.Number(59.99)
		res := s.validator.ValidateAll(d)
		s.Equal([]string{"shareholder ownership totals 99.99%, must equal 100%"}, res.AggregateErrors)
	})

	s.Run("thirds that round to 100 pass", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Shareholders = []form.Shareholder{
			{ID: "a", Name: "A", Nationality: "AE", IDType: form.IDTypePassport, IDNumber: "1", PercentageOwnership: form.Number(33.33), DateAcquired: "2020-01-01"},
			{ID: "b", Name: "B", Nationality: "AE", IDType: form.IDTypePassport, IDNumber: "2", PercentageOwnership: form.Number(33.33), DateAcquired: "2020-01-01"},
			{ID: "c", Name: "C", Nationality: "AE", IDType: form.IDTypePassport, IDNumber: "3", PercentageOwnership: form.Number(33.34), DateAcquired: "2020-01-01"},
		}
		res := s.validator.ValidateAll(d)
		s.True(res.Valid(), res.Summary())
	})

	s.Run("over-allocation", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Shareholders[1].PercentageOwnership = form.Number(40.5)
		res := s.validator.ValidateAll(d)
		s.Equal([]string{"shareholder ownership totals 100.5%, must equal 100%"}, res.AggregateErrors)
	})

	s.Run("beneficial owners are checked independently", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.BeneficialOwners[0].PercentageControl = form.Number(75)
		res := s.validator.ValidateAll(d)
		s.Equal([]string{"beneficial owner control totals 75%, must equal 100%"}, res.AggregateErrors)
	})

	s.Run("empty beneficial owners skip the total", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.BeneficialOwners = nil
		s.True(s.validator.ValidateAll(d).Valid())
	})

	s.Run("required shareholding needs a shareholder", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		d.Shareholders = nil
		res := s.validator.ValidateAll(d)
		s.Equal([]string{"at least one shareholder is required"}, res.AggregateErrors)
	})
}

func (s *ValidatorSuite) TestRowCeilingsAreRechecked() {
	d := s.draft(pathway.ActivityFinancialServices)
	d.Shareholders = nil
	for i := range form.MaxShareholders + 1 {
		pct := 6.0
		if i == 0 {
			pct = 10
		}
		d.Shareholders = append(d.Shareholders, form.Shareholder{
			ID: fmt.Sprintf("sh-%d", i), Name: "S", Nationality: "AE", IDType: form.IDTypePassport,
			IDNumber: "X", PercentageOwnership: form.Number(pct), DateAcquired: "2020-01-01",
		})
	}
	res := s.validator.ValidateAll(d)
	s.Equal([]string{"shareholders has 16 rows, at most 15 are allowed"}, res.AggregateErrors)
}

func (s *ValidatorSuite) TestOptionalAndHiddenSteps() {
	s.Run("optional step enforces formats only", func() {
		d := s.draft(pathway.ActivityInnovationSandbox)
		delete(d.Fields, "authorisedCapital")
		d.Shareholders = nil
		d.FundingSources = nil
		s.True(s.validator.ValidateAll(d).Valid())

		d.Fields["paidUpCapital"] = -10.0
		res := s.validator.ValidateAll(d)
		s.Equal(map[string]string{"paidUpCapital": "Paid-up capital must be zero or more"}, res.FieldErrors)
	})

	s.Run("rows on an optional step still aggregate", func() {
		d := s.draft(pathway.ActivityInnovationSandbox)
		d.Shareholders = d.Shareholders[:1]
		res := s.validator.ValidateAll(d)
		s.Equal([]string{"shareholder ownership totals 60%, must equal 100%"}, res.AggregateErrors)
	})

	s.Run("hidden steps are ignored", func() {
		d := s.draft(pathway.ActivityInnovationSandbox)
		d.Fields["mlro"] = map[string]any{"email": "nope"}
		d.BeneficialOwners[0].PercentageControl = form.Number(10)
		s.True(s.validator.ValidateAll(d).Valid())
	})
}

func (s *ValidatorSuite) TestSwitchingActivityDropsFeatureErrors() {
	d := s.draft(pathway.ActivityFinancialServices)
	d.Fields["mlro"] = map[string]any{"name": "", "email": "not-an-email", "phone": "+971"}

	res := s.validator.ValidateAll(d)
	s.Contains(res.FieldErrors, "mlro.name")
	s.Contains(res.FieldErrors, "mlro.email")

	d.Fields["activityType"] = string(pathway.ActivityTokenIssuance)
	res = s.validator.ValidateAll(d)
	s.False(s.hasPrefix(res.FieldErrors, "mlro."))
	s.Equal("not-an-email", d.String("mlro.email"))
}

func (s *ValidatorSuite) TestDocumentCompleteness() {
	s.Run("missing required document", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		delete(d.Fields["documents"].(map[string]any), "aml_policy")
		res := s.validator.ValidateAll(d)
		s.Equal(map[string]string{"documents.aml_policy": "AML/CFT Policy is required"}, res.FieldErrors)
	})

	s.Run("missing optional document", func() {
		d := s.draft(pathway.ActivityFinancialServices)
		delete(d.Fields["documents"].(map[string]any), "audited_financials")
		s.True(s.validator.ValidateAll(d).Valid())
	})

	s.Run("without a resolver documents are not checked", func() {
		v := New(pathway.Default(), nil)
		d := s.draft(pathway.ActivityFinancialServices)
		delete(d.Fields, "documents")
		s.True(v.ValidateAll(d).Valid())
	})
}

func (s *ValidatorSuite) TestValidateStep() {
	d := s.draft(pathway.ActivityFinancialServices)
	d.Fields["legalEntityName"] = ""
	d.Fields["paidUpCapital"] = -1.0
	delete(d.Fields, "declaration")

	s.Run("welcome only sees the activity type", func() {
		s.True(s.validator.ValidateStep(d, pathway.StepWelcome).Valid())
	})

	s.Run("later steps include earlier ones", func() {
		res := s.validator.ValidateStep(d, pathway.StepShareholding)
		s.Equal([]string{"legalEntityName"}, res.Paths())
	})

	s.Run("financial info step", func() {
		res := s.validator.ValidateStep(d, pathway.StepFinancialInfo)
		s.Equal([]string{"legalEntityName", "paidUpCapital"}, res.Paths())
	})

	s.Run("all steps", func() {
		res := s.validator.ValidateAll(d)
		s.Equal([]string{"declaration.accepted", "declaration.signatoryName", "legalEntityName", "paidUpCapital"}, res.Paths())
	})
}

func (s *ValidatorSuite) TestStepOf() {
	s.Equal(pathway.StepWelcome, s.validator.StepOf("activityType"))
	s.Equal(pathway.StepBasicInfo, s.validator.StepOf("businessAddress.city"))
	s.Equal(pathway.StepShareholding, s.validator.StepOf("shareholders.sh-1.name"))
	s.Equal(pathway.StepDocuments, s.validator.StepOf("documents.aml_policy"))
	s.Equal(pathway.StepRegulatoryCompliance, s.validator.StepOf("mlro.email"))
	s.Equal(pathway.StepID(""), s.validator.StepOf("favouriteColour"))
}
