package certificate

import (
	"regexp"
	"strings"
)

// Verdict is what the classifier reads off a certificate's text.
type Verdict struct {
	Pendency   bool
	HolderName string
}

// Classifier decides pendency and the holder's name for a family's text.
type Classifier interface {
	Classify(text string, family Family) Verdict
}

// Rule is the heuristic for one family. The marker is the phrase an issuer
// prints when nothing is on record; its absence means pendency.
type Rule struct {
	Marker string
	// FoldCase tests the marker against the upper-cased text.
	FoldCase bool
	// Name captures the holder's name in its first group.
	Name *regexp.Regexp
}

// Classify applies the rule to text. A missing name is not an error.
func (r Rule) Classify(text string) Verdict {
	haystack := text
	if r.FoldCase {
		haystack = strings.ToUpper(text)
	}
	v := Verdict{Pendency: r.Marker == "" || !strings.Contains(haystack, r.Marker)}
	if r.Name != nil {
		if m := r.Name.FindStringSubmatch(text); len(m) > 1 {
			v.HolderName = strings.TrimSpace(m[1])
		}
	}
	return v
}

// Rules maps families to their rule. Families without a rule always report
// pendency and no name.
type Rules map[Family]Rule

// Classify implements Classifier.
func (rs Rules) Classify(text string, family Family) Verdict {
	rule, ok := rs[family]
	if !ok {
		return Verdict{Pendency: true}
	}
	return rule.Classify(text)
}

// DefaultRules are the markers printed on the documents of the current issuers.
func DefaultRules() Rules {
	return Rules{
		FamilyCourt: {
			Marker: "NÃO CONSTAM",
			Name:   regexp.MustCompile(`\n(.+?)\nOU\n`),
		},
		FamilyNadaConsta: {
			Marker:   "NADA CONSTA",
			FoldCase: true,
			Name:     regexp.MustCompile(`CPF/CNPJ de:\s*\n\s*([^\n]+)`),
		},
		FamilyRevenue: {
			Marker: "não constam",
			Name:   regexp.MustCompile(`Nome:(.+?)\nCPF`),
		},
	}
}
