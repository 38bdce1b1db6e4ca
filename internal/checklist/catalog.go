package checklist

import (
	"slices"
	"strings"

	"compliancekit/internal/domain"
)

// Catalog enumerates the selectable values offered to users.
type Catalog struct {
	CompanyTypes  []string `json:"company_types" yaml:"company_types"`
	Jurisdictions []string `json:"jurisdictions" yaml:"jurisdictions"`
	Industries    []string `json:"industries" yaml:"industries"`
}

// DefaultCatalog returns the built-in selection sets.
func DefaultCatalog() Catalog {
	return Catalog{
		CompanyTypes: []string{
			"Private Limited Company",
			"Limited Liability Partnership (LLP)",
			"Sole Proprietorship",
			"Partnership Firm",
			"One Person Company (OPC)",
		},
		Jurisdictions: []string{
			"Delhi",
			"Maharashtra",
			"Karnataka",
			"Tamil Nadu",
			"Gujarat",
			"West Bengal",
			"Uttar Pradesh",
			"Rajasthan",
			"Telangana",
			"Kerala",
		},
		Industries: []string{
			"Technology / IT Services",
			"Finance / Banking",
			"Manufacturing",
			"Healthcare",
			"E-commerce / Retail",
			"Education",
			"Real Estate",
			"Food & Beverage",
			"Consulting",
			"Other Services",
		},
	}
}

// Validate names every blank or unknown field of sel.
func (c Catalog) Validate(sel domain.Selection) error {
	var verr domain.ValidationError
	verr = checkMember(verr, "company_type", sel.CompanyType, c.CompanyTypes)
	verr = checkMember(verr, "jurisdiction", sel.Jurisdiction, c.Jurisdictions)
	verr = checkMember(verr, "industry", sel.Industry, c.Industries)
	return verr.OrNil()
}

func checkMember(verr domain.ValidationError, field, value string, allowed []string) domain.ValidationError {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return verr.Add(field, "required")
	case !slices.Contains(allowed, value):
		return verr.Add(field, "unknown value")
	}
	return verr
}
