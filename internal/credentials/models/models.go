package models

import (
	"encoding/json"
	"slices"
	"strings"

	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
)

// Image is the OCPI logo object carried in business details.
type Image struct {
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Category  string `json:"category,omitempty"`
	Type      string `json:"type,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

type BusinessDetails struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Logo    *Image `json:"logo,omitempty"`
}

// CredentialsRole is one role a platform acts in.
type CredentialsRole struct {
	Role            domain.Role     `json:"role"`
	BusinessDetails BusinessDetails `json:"business_details"`
	PartyID         string          `json:"party_id"`
	CountryCode     string          `json:"country_code"`
}

// Identity validates and normalizes the role into a PartyIdentity.
func (r CredentialsRole) Identity() (domain.PartyIdentity, error) {
	return domain.ParsePartyIdentity(r.CountryCode, r.PartyID, string(r.Role))
}

// Credentials is the object two platforms exchange during registration. The
// token authorizes calls made to the platform that issued it.
type Credentials struct {
	Token string            `json:"token"`
	URL   string            `json:"url"`
	Roles []CredentialsRole `json:"roles"`
}

// legacyCredentials is the 2.1.1 body, which describes a single party inline.
type legacyCredentials struct {
	Token           string            `json:"token"`
	URL             string            `json:"url"`
	BusinessDetails *BusinessDetails  `json:"business_details,omitempty"`
	PartyID         string            `json:"party_id,omitempty"`
	CountryCode     string            `json:"country_code,omitempty"`
	Roles           []CredentialsRole `json:"roles,omitempty"`
}

// UnmarshalJSON accepts both the 2.2 roles list and the 2.1.1 flat party
// fields. A flat body becomes one role of RoleOther since 2.1.1 does not
// carry the role.
func (c *Credentials) UnmarshalJSON(b []byte) error {
	var raw legacyCredentials
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.Token = raw.Token
	c.URL = raw.URL
	c.Roles = raw.Roles
	if len(c.Roles) == 0 && raw.PartyID != "" {
		role := CredentialsRole{Role: domain.RoleOther, PartyID: raw.PartyID, CountryCode: raw.CountryCode}
		if raw.BusinessDetails != nil {
			role.BusinessDetails = *raw.BusinessDetails
		}
		c.Roles = []CredentialsRole{role}
	}
	return nil
}

// ForVersion returns the body to send to a peer speaking version v. Peers
// before 2.2 receive the flat shape built from the first role.
func (c Credentials) ForVersion(v domain.VersionNumber) any {
	if v.IsNil() || v.IsAtLeast(domain.Version22) || len(c.Roles) == 0 {
		return c
	}
	first := c.Roles[0]
	bd := first.BusinessDetails
	return legacyCredentials{
		Token:           c.Token,
		URL:             c.URL,
		BusinessDetails: &bd,
		PartyID:         first.PartyID,
		CountryCode:     first.CountryCode,
	}
}

// Validate checks the fields a counterparty must always send.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return dErrors.New(dErrors.CodeValidation, "token is required")
	}
	if len(c.Token) > 64 {
		return dErrors.New(dErrors.CodeValidation, "token must be at most 64 characters")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return dErrors.New(dErrors.CodeValidation, "url must be an absolute http(s) URL")
	}
	if len(c.Roles) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one role is required")
	}
	for _, r := range c.Roles {
		if _, err := r.Identity(); err != nil {
			return err
		}
		if strings.TrimSpace(r.BusinessDetails.Name) == "" {
			return dErrors.New(dErrors.CodeValidation, "business_details.name is required")
		}
	}
	return nil
}

// Identities returns the validated identity of every role.
func (c Credentials) Identities() ([]domain.PartyIdentity, error) {
	out := make([]domain.PartyIdentity, 0, len(c.Roles))
	for _, r := range c.Roles {
		id, err := r.Identity()
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// Represents reports whether one of the roles names the given party. A role
// of RoleOther matches on country and party id alone.
func (c Credentials) Represents(id domain.PartyIdentity) bool {
	return slices.ContainsFunc(c.Roles, func(r CredentialsRole) bool {
		if !strings.EqualFold(r.CountryCode, id.CountryCode) || !strings.EqualFold(r.PartyID, id.PartyID) {
			return false
		}
		return r.Role == domain.RoleOther || strings.EqualFold(string(r.Role), string(id.Role))
	})
}

// Clone returns a deep copy.
func (c Credentials) Clone() Credentials {
	out := c
	out.Roles = make([]CredentialsRole, len(c.Roles))
	for i, r := range c.Roles {
		out.Roles[i] = r
		if r.BusinessDetails.Logo != nil {
			logo := *r.BusinessDetails.Logo
			out.Roles[i].BusinessDetails.Logo = &logo
		}
	}
	if c.Roles == nil {
		out.Roles = nil
	}
	return out
}

// Redacted hides the token for logs and read APIs.
func (c Credentials) Redacted() Credentials {
	out := c.Clone()
	if out.Token != "" {
		out.Token = "***"
	}
	return out
}
