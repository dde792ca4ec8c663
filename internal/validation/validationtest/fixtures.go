// Package validationtest builds drafts that pass validation, for tests and
// the CLI's sample command.
package validationtest

import (
	"intake/internal/documents"
	"intake/internal/form"
	"intake/internal/pathway"
)

// CompleteDraft returns a draft that satisfies every rule on t's pathway,
// including uploaded references for all of its document slots.
func CompleteDraft(t pathway.ActivityType) form.Draft {
	registry := pathway.Default()
	cfg, err := registry.Config(t)
	if err != nil {
		panic(err)
	}

	address := map[string]any{
		"line1":      "Level 14, Al Sarab Tower",
		"line2":      "",
		"city":       "Abu Dhabi",
		"region":     "",
		"postalCode": "",
		"country":    "AE",
	}
	mailing := form.EmptyAddress()
	for k, v := range address {
		mailing[k] = v
	}

	fields := map[string]any{
		form.FieldActivityType:          string(t),
		"legalEntityName":               "Harbour Capital Ltd",
		"registrationNumber":            "RC-2019-0192",
		"incorporationDate":             "2019-03-14",
		"contactEmail":                  "compliance@harbour.example",
		"contactPhone":                  "+971 2 555 0100",
		form.FieldBusinessAddress:       address,
		form.FieldSameAsBusinessAddress: true,
		form.FieldMailingAddress:        mailing,
		"entityType":                    "private_company",
		"jurisdiction":                  "ADGM",
		"authorisedCapital":             5000000.0,
		"paidUpCapital":                 2500000.0,
		"sanctionsDeclaration":          true,
		"declaration": map[string]any{
			"accepted":      true,
			"signatoryName": "Amira Haddad",
		},
	}

	f := cfg.Features
	if f.ComplianceOfficerRequired {
		fields["complianceOfficer"] = map[string]any{"name": "Omar Saleh", "email": "omar@harbour.example"}
	}
	if f.MLRORequired {
		fields["mlro"] = map[string]any{"name": "Lena Park", "email": "mlro@harbour.example", "phone": "+971 2 555 0101"}
	}
	if f.CustodyDisclosureRequired {
		fields["custodyArrangements"] = "Segregated cold storage with a licensed third-party custodian"
	}
	if f.TokenDetailsRequired {
		fields["token"] = map[string]any{"name": "Harbour Token", "symbol": "HBR", "totalSupply": 1000000000.0}
	}

	reqs, err := documents.NewResolver(registry).Requirements(t)
	if err != nil {
		panic(err)
	}
	docs := map[string]any{}
	for _, r := range reqs {
		docs[string(r.DocumentID)] = "https://blobs.example/" + string(r.DocumentID) + ".pdf"
	}
	fields[form.FieldDocuments] = docs

	return form.Draft{
		Fields: fields,
		Shareholders: []form.Shareholder{
			{ID: "sh-1", Name: "Harbour Holdings LLC", Nationality: "AE", IDType: form.IDTypeOther, IDNumber: "HH-77", PercentageOwnership: form.Number(60), DateAcquired: "2019-03-14"},
			{ID: "sh-2", Name: "Amira Haddad", Nationality: "JO", IDType: form.IDTypePassport, IDNumber: "P1234567", PercentageOwnership: form.Number(40), DateAcquired: "2020-01-10"},
		},
		BeneficialOwners: []form.BeneficialOwner{
			{ID: "bo-1", Name: "Amira Haddad", ControlType: form.ControlDirect, PercentageControl: form.Number(100), DateOfBirth: "1980-05-02", IDDetails: "Passport P1234567"},
		},
		FundingSources: []form.FundingSource{
			{ID: "fs-1", SourceType: form.SourceEquity, Description: "Founder equity", AmountUSD: form.Number(2500000)},
		},
	}
}
