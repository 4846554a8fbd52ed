package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed party.default.yaml
var defaultParty []byte

// PartyFile describes the local platform: the parties it hosts and the
// OCPI versions and module endpoints it serves.
type PartyFile struct {
	Tenants  []TenantSpec  `yaml:"tenants"`
	Versions []VersionSpec `yaml:"versions"`
}

type TenantSpec struct {
	CountryCode     string              `yaml:"country_code"`
	PartyID         string              `yaml:"party_id"`
	Role            string              `yaml:"role"`
	BusinessDetails BusinessDetailsSpec `yaml:"business_details"`
	Inactive        bool                `yaml:"inactive"`
}

type BusinessDetailsSpec struct {
	Name    string `yaml:"name"`
	Website string `yaml:"website"`
	LogoURL string `yaml:"logo_url"`
}

type VersionSpec struct {
	Version   string         `yaml:"version"`
	Endpoints []EndpointSpec `yaml:"endpoints"`
}

type EndpointSpec struct {
	Identifier string `yaml:"identifier"`
	// Role is SENDER or RECEIVER; 2.1.1 endpoints leave it empty.
	Role string `yaml:"role"`
	// URL overrides the derived endpoint URL.
	URL string `yaml:"url"`
}

// ParseParty parses and minimally validates a party description.
func ParseParty(data []byte) (*PartyFile, error) {
	var pf PartyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse party file: %w", err)
	}
	if len(pf.Tenants) == 0 {
		return nil, fmt.Errorf("party file: at least one tenant is required")
	}
	if len(pf.Versions) == 0 {
		return nil, fmt.Errorf("party file: at least one version is required")
	}
	for _, v := range pf.Versions {
		if v.Version == "" {
			return nil, fmt.Errorf("party file: version entry without version")
		}
		if len(v.Endpoints) == 0 {
			return nil, fmt.Errorf("party file: version %s has no endpoints", v.Version)
		}
	}
	return &pf, nil
}

// LoadParty reads the party description from path, or the embedded default when path is empty.
func LoadParty(path string) (*PartyFile, error) {
	if path == "" {
		return ParseParty(defaultParty)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read party file %s: %w", path, err)
	}
	return ParseParty(data)
}
