package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Industry describes one industry vertical we collect listings for.
type Industry struct {
	SearchTerms  []string `yaml:"search_terms"`
	SICCodes     []string `yaml:"sic_codes"`
	ExcludeTerms []string `yaml:"exclude_terms"`
}

// Catalog is the industry and location configuration for collection runs.
type Catalog struct {
	Industries map[string]Industry `yaml:"industries"`
	Locations  []string            `yaml:"locations"`
}

// LoadCatalog reads the industry/location catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read catalog %s", path)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, eris.Wrap(err, "config: parse catalog")
	}
	return &cat, nil
}

// SearchTermsFor returns the configured search terms for an industry,
// falling back to the industry name itself when unconfigured.
func (c *Catalog) SearchTermsFor(industry string) []string {
	if ind, ok := c.Industries[industry]; ok && len(ind.SearchTerms) > 0 {
		return ind.SearchTerms
	}
	return []string{industry}
}
