// Package certificate issues legal-record certificates against the upstream
// document services and classifies their text.
package certificate

import "strings"

// Category is one type of legal-record certificate.
type Category string

const (
	Criminal   Category = "CRIMINAL"
	Civil      Category = "CIVEL"
	Electoral  Category = "ELEITORAL"
	Bankruptcy Category = "FALENCIA"
	Special    Category = "ESPECIAL"
	Revenue    Category = "RECEITA"
)

var knownCategories = []Category{Criminal, Civil, Electoral, Bankruptcy, Special, Revenue}

// ParseCategory accepts a category tag in any letter case.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range knownCategories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Slug is the lower-case form used in stored file names.
func (c Category) Slug() string {
	return strings.ToLower(string(c))
}

// SubjectType distinguishes individuals (CPF) from companies (CNPJ).
type SubjectType string

const (
	Individual SubjectType = "CPF"
	Company    SubjectType = "CNPJ"
)

// ParseSubjectType normalizes the letter case. Unknown tags return false.
func ParseSubjectType(s string) (SubjectType, bool) {
	switch SubjectType(strings.ToUpper(strings.TrimSpace(s))) {
	case Individual:
		return Individual, true
	case Company:
		return Company, true
	}
	return "", false
}

// Family groups upstream issuers that share a response shape and the text
// markers printed on their documents.
type Family string

const (
	// FamilyCourt answers with a file name (and sometimes the text) directly.
	FamilyCourt Family = "court"
	// FamilyNadaConsta answers with a nested certificate URL and needs the
	// subject's mother's name.
	FamilyNadaConsta Family = "nada_consta"
	// FamilyRevenue is the federal revenue issuer; same shape as FamilyCourt.
	FamilyRevenue Family = "revenue"
)

// Valid reports whether f is a supported family.
func (f Family) Valid() bool {
	switch f {
	case FamilyCourt, FamilyNadaConsta, FamilyRevenue:
		return true
	}
	return false
}

// nested reports whether the family answers with the dados.certidao shape.
func (f Family) nested() bool {
	return f == FamilyNadaConsta
}
