package model

import "time"

// EconomicActivity is one declared line of the registration's activity table.
type EconomicActivity struct {
	Order       int        `json:"order"`
	Description string     `json:"description"`
	Percentage  int        `json:"percentage"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// TaxRegistration is the canonical record built from a Constancia de
// Situación Fiscal.
type TaxRegistration struct {
	LegalName    string             `json:"legal_name"`
	RFC          string             `json:"rfc"`
	PersonType   PersonType         `json:"person_type"`
	Street       string             `json:"street"`
	Number       string             `json:"number"`
	Colony       string             `json:"colony"`
	City         string             `json:"city"`
	State        string             `json:"state"`
	PostalCode   string             `json:"postal_code"`
	Email        string             `json:"email,omitempty"`
	Regime       string             `json:"regime,omitempty"`
	Status       string             `json:"status,omitempty"`
	EmissionDate *time.Time         `json:"emission_date,omitempty"`
	Activities   []EconomicActivity `json:"activities,omitempty"`
	Provenance   Provenance         `json:"provenance"`
	Blob         string             `json:"-"`
}

// CompanyInfo is the projection of a registration used to prefill the
// supplier form.
type CompanyInfo struct {
	TradeName  string `json:"trade_name"`
	LegalName  string `json:"legal_name"`
	RFC        string `json:"rfc"`
	PersonType string `json:"person_type"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	Colony     string `json:"colony"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// CompanyInfo projects the registration into form fields.
func (r *TaxRegistration) CompanyInfo() CompanyInfo {
	if r == nil {
		return CompanyInfo{}
	}
	return CompanyInfo{
		TradeName:  r.LegalName,
		LegalName:  r.LegalName,
		RFC:        r.RFC,
		PersonType: ClassifyRFC(r.RFC).Label(),
		Street:     r.Street,
		Number:     r.Number,
		Colony:     r.Colony,
		City:       r.City,
		State:      r.State,
		PostalCode: r.PostalCode,
		Country:    "México",
	}
}
