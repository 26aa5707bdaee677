package certificate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultUpstream is the base URL of the current issuance gateway.
const DefaultUpstream = "https://docs.zukcode.com"

// Endpoint is one issuance service: where to submit the subject and how to read
// the answer.
type Endpoint struct {
	Category Category `yaml:"category"`
	Family   Family   `yaml:"family"`
	URL      string   `yaml:"url"`
	// DownloadBase prefixes the file name returned by direct-shape issuers.
	DownloadBase string `yaml:"download_base,omitempty"`
	// IDField is the JSON key carrying the subject identifier.
	IDField        string `yaml:"id_field"`
	SendMotherName bool   `yaml:"send_mother_name,omitempty"`
}

// Catalog lists, per subject type, the endpoints a run issues in order. The
// order is the dossier's page order.
type Catalog struct {
	subjects map[SubjectType][]Endpoint
}

// NewCatalog builds a catalog from explicit endpoint lists.
func NewCatalog(subjects map[SubjectType][]Endpoint) (*Catalog, error) {
	c := &Catalog{subjects: make(map[SubjectType][]Endpoint, len(subjects))}
	for st, eps := range subjects {
		if len(eps) == 0 {
			return nil, fmt.Errorf("catalog: subject %s has no endpoints", st)
		}
		seen := make(map[Category]bool, len(eps))
		for i, ep := range eps {
			if err := ep.validate(); err != nil {
				return nil, fmt.Errorf("catalog: subject %s entry %d: %w", st, i, err)
			}
			if seen[ep.Category] {
				return nil, fmt.Errorf("catalog: subject %s lists %s twice", st, ep.Category)
			}
			seen[ep.Category] = true
		}
		c.subjects[st] = append([]Endpoint(nil), eps...)
	}
	return c, nil
}

// DefaultCatalog issues revenue, special, civil, criminal and electoral
// certificates for individuals, and criminal, civil and electoral ones for
// companies.
func DefaultCatalog(upstream string) *Catalog {
	base := strings.TrimRight(upstream, "/")
	if base == "" {
		base = DefaultUpstream
	}
	docs := base + "/docs"
	court := func(cat Category, path, idField string) Endpoint {
		return Endpoint{Category: cat, Family: FamilyCourt, URL: base + path, DownloadBase: docs, IDField: idField}
	}
	return &Catalog{subjects: map[SubjectType][]Endpoint{
		Individual: {
			{Category: Revenue, Family: FamilyRevenue, URL: base + "/receita/cpf", DownloadBase: docs, IDField: "cpf"},
			{Category: Special, Family: FamilyNadaConsta, URL: base + "/tjdft/nada_consta/especial", IDField: "cpf", SendMotherName: true},
			court(Civil, "/tjdf/civel", "cpf"),
			court(Criminal, "/tjdf/criminal", "cpf"),
			court(Electoral, "/tjdf/eleitoral", "cpf"),
		},
		Company: {
			court(Criminal, "/tjdf/criminal/cnpj", "cnpj"),
			court(Civil, "/tjdf/civel/cnpj", "cnpj"),
			court(Electoral, "/tjdf/eleitoral/cnpj", "cnpj"),
		},
	}}
}

// EndpointsFor returns the endpoints for a subject type tag. Unknown tags get
// an empty list.
func (c *Catalog) EndpointsFor(subjectType string) []Endpoint {
	st, ok := ParseSubjectType(subjectType)
	if !ok {
		return nil
	}
	return append([]Endpoint(nil), c.subjects[st]...)
}

// CategoriesFor returns the ordered category tags for a subject type tag.
func (c *Catalog) CategoriesFor(subjectType string) []Category {
	eps := c.EndpointsFor(subjectType)
	out := make([]Category, 0, len(eps))
	for _, ep := range eps {
		out = append(out, ep.Category)
	}
	return out
}

// Endpoint finds the endpoint for one category of a subject type.
func (c *Catalog) Endpoint(subjectType string, category Category) (Endpoint, bool) {
	for _, ep := range c.EndpointsFor(subjectType) {
		if ep.Category == category {
			return ep, true
		}
	}
	return Endpoint{}, false
}

func (ep Endpoint) validate() error {
	if _, ok := ParseCategory(string(ep.Category)); !ok {
		return fmt.Errorf("unknown category %q", ep.Category)
	}
	if !ep.Family.Valid() {
		return fmt.Errorf("unknown family %q", ep.Family)
	}
	if ep.URL == "" {
		return fmt.Errorf("%s: missing url", ep.Category)
	}
	if ep.IDField == "" {
		return fmt.Errorf("%s: missing id_field", ep.Category)
	}
	if !ep.Family.nested() && ep.DownloadBase == "" {
		return fmt.Errorf("%s: family %s requires download_base", ep.Category, ep.Family)
	}
	return nil
}

type catalogFile struct {
	DownloadBase string                `yaml:"download_base"`
	Subjects     map[string][]Endpoint `yaml:"subjects"`
}

// LoadCatalog reads a YAML override. Subject types present in the file replace
// the defaults; the rest keep the built-in lists.
func LoadCatalog(path, upstream string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	subjects := DefaultCatalog(upstream).subjects
	for key, eps := range file.Subjects {
		st, ok := ParseSubjectType(key)
		if !ok {
			return nil, fmt.Errorf("catalog: unknown subject type %q", key)
		}
		for i := range eps {
			eps[i].Category = Category(strings.ToUpper(string(eps[i].Category)))
			if eps[i].DownloadBase == "" && !eps[i].Family.nested() {
				eps[i].DownloadBase = file.DownloadBase
			}
		}
		subjects[st] = eps
	}
	return NewCatalog(subjects)
}
