package domain

import (
	"fmt"
	"regexp"
	"strings"

	dErrors "voltgrid/pkg/domain-errors"
)

// Role is the OCPI role a party acts in.
type Role string

const (
	RoleCPO   Role = "CPO"
	RoleEMSP  Role = "EMSP"
	RoleHub   Role = "HUB"
	RoleNAP   Role = "NAP"
	RoleNSP   Role = "NSP"
	RoleSCSP  Role = "SCSP"
	RoleOther Role = "OTHER"
)

var knownRoles = map[Role]struct{}{
	RoleCPO: {}, RoleEMSP: {}, RoleHub: {}, RoleNAP: {}, RoleNSP: {}, RoleSCSP: {}, RoleOther: {},
}

// ParseRole upper-cases and validates a role string.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownRoles[r]; !ok {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown role %q", s))
	}
	return r, nil
}

var (
	countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)
	partyIDPattern     = regexp.MustCompile(`^[A-Z0-9]{3}$`)
)

// PartyIdentity identifies a trading partner within a role.
//
// Invariants:
//   - CountryCode is two letters, PartyID three alphanumerics, both stored upper-case
//   - Role is a known OCPI role
//
// Construct through ParsePartyIdentity so that comparisons with == are
// equivalent to case-insensitive comparison of the codes.
type PartyIdentity struct {
	CountryCode string `json:"country_code"`
	PartyID     string `json:"party_id"`
	Role        Role   `json:"role"`
}

// ParsePartyIdentity normalizes and validates the three identity fields.
func ParsePartyIdentity(countryCode, partyID, role string) (PartyIdentity, error) {
	cc := strings.ToUpper(strings.TrimSpace(countryCode))
	if !countryCodePattern.MatchString(cc) {
		return PartyIdentity{}, dErrors.New(dErrors.CodeValidation, "country_code must be two letters")
	}
	pid := strings.ToUpper(strings.TrimSpace(partyID))
	if !partyIDPattern.MatchString(pid) {
		return PartyIdentity{}, dErrors.New(dErrors.CodeValidation, "party_id must be three alphanumeric characters")
	}
	r, err := ParseRole(role)
	if err != nil {
		return PartyIdentity{}, err
	}
	return PartyIdentity{CountryCode: cc, PartyID: pid, Role: r}, nil
}

// Equal compares two identities, ignoring the case of the codes.
func (p PartyIdentity) Equal(other PartyIdentity) bool {
	return strings.EqualFold(p.CountryCode, other.CountryCode) &&
		strings.EqualFold(p.PartyID, other.PartyID) &&
		strings.EqualFold(string(p.Role), string(other.Role))
}

// Key is the canonical storage key, e.g. "NL:ABC:CPO".
func (p PartyIdentity) Key() string {
	return strings.ToUpper(p.CountryCode) + ":" + strings.ToUpper(p.PartyID) + ":" + strings.ToUpper(string(p.Role))
}

// ParseKey reverses Key.
func ParseKey(key string) (PartyIdentity, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return PartyIdentity{}, dErrors.New(dErrors.CodeValidation, "malformed party key")
	}
	return ParsePartyIdentity(parts[0], parts[1], parts[2])
}

func (p PartyIdentity) String() string {
	return p.Key()
}

func (p PartyIdentity) IsZero() bool {
	return p == PartyIdentity{}
}
