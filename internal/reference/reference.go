// Package reference loads the static site and condition datasets
package reference

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/abelzeko/riverflow/internal/conditions"
	"github.com/abelzeko/riverflow/internal/entities"
)

//go:embed data/sites.json data/conditions.json
var defaults embed.FS

var numericSiteID = regexp.MustCompile(`^[0-9]+$`)

// Store holds the reference data, read-only after loading
type Store struct {
	sites      []entities.Site
	byID       map[string]entities.Site
	conditions *conditions.Table
}

type sitesFile struct {
	Data []entities.Site `json:"data"`
}

// Load reads the site and condition datasets. Empty paths fall back to the embedded defaults.
func Load(sitesPath, conditionsPath string) (*Store, error) {
	sitesRaw, err := readFile(sitesPath, "data/sites.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read sites: %w", err)
	}
	conditionsRaw, err := readFile(conditionsPath, "data/conditions.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read conditions: %w", err)
	}
	return Parse(sitesRaw, conditionsRaw)
}

// Parse builds a Store from raw JSON documents
func Parse(sitesRaw, conditionsRaw []byte) (*Store, error) {
	var sf sitesFile
	if err := json.Unmarshal(sitesRaw, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse sites: %w", err)
	}

	byID := make(map[string]entities.Site, len(sf.Data))
	for _, s := range sf.Data {
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate site id %q", s.ID)
		}
		byID[s.ID] = s
	}

	var texts map[string]string
	if err := json.Unmarshal(conditionsRaw, &texts); err != nil {
		return nil, fmt.Errorf("failed to parse conditions: %w", err)
	}
	ordered := make([]string, conditions.LevelCount)
	for i := range ordered {
		key := fmt.Sprintf("flow%d", i)
		text, ok := texts[key]
		if !ok {
			return nil, fmt.Errorf("conditions missing %q", key)
		}
		ordered[i] = text
	}
	table, err := conditions.NewTable(ordered)
	if err != nil {
		return nil, err
	}

	return &Store{
		sites:      sf.Data,
		byID:       byID,
		conditions: table,
	}, nil
}

func readFile(path, fallback string) ([]byte, error) {
	if path == "" {
		return defaults.ReadFile(fallback)
	}
	return os.ReadFile(path)
}

// Sites returns every site in dataset order
func (s *Store) Sites() []entities.Site {
	out := make([]entities.Site, len(s.sites))
	copy(out, s.sites)
	return out
}

// SiteIDs returns the numeric site identifiers to request upstream
func (s *Store) SiteIDs() []string {
	ids := make([]string, 0, len(s.sites))
	for _, site := range s.sites {
		if numericSiteID.MatchString(site.ID) {
			ids = append(ids, site.ID)
		}
	}
	return ids
}

// Site looks up a site by its identifier
func (s *Store) Site(id string) (entities.Site, bool) {
	site, ok := s.byID[id]
	return site, ok
}

// Conditions returns the condition table
func (s *Store) Conditions() *conditions.Table {
	return s.conditions
}

// IsNumericSiteID reports whether id looks like a USGS site number
func IsNumericSiteID(id string) bool {
	return numericSiteID.MatchString(id)
}
