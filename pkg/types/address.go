package types

import "strings"

// Address is a postal address as printed on documents.
type Address struct {
	Company    string `json:"company,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Line1      string `json:"address_1"`
	Line2      string `json:"address_2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country_code"`
	Phone      string `json:"phone,omitempty"`
}

// FullName joins first and last name.
func (a Address) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(a.FirstName) + " " + strings.TrimSpace(a.LastName))
}

// Lines returns the non-empty printable lines of the address.
func (a Address) Lines() []string {
	lines := make([]string, 0, 5)
	for _, v := range []string{
		a.Company,
		a.FullName(),
		a.Line1,
		a.Line2,
		strings.TrimSpace(a.PostalCode + " " + a.City),
		strings.ToUpper(a.Country),
	} {
		if strings.TrimSpace(v) != "" {
			lines = append(lines, v)
		}
	}
	return lines
}
