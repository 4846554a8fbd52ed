package domain

import (
	"github.com/google/uuid"

	dErrors "voltgrid/pkg/domain-errors"
)

// RecordID identifies one RegistrationRecord incarnation. A party that returns
// after deregistration gets a new RecordID.
type RecordID uuid.UUID

// TenantID identifies a local party hosted by this platform.
type TenantID uuid.UUID

// EventID identifies a handshake event; brokers use it for deduplication.
type EventID uuid.UUID

func NewRecordID() RecordID { return RecordID(uuid.New()) }
func NewTenantID() TenantID { return TenantID(uuid.New()) }
func NewEventID() EventID   { return EventID(uuid.New()) }

func (id RecordID) String() string { return uuid.UUID(id).String() }
func (id TenantID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string  { return uuid.UUID(id).String() }

func (id RecordID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// ParseRecordID parses a non-nil UUID string.
func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record id")
	return RecordID(u), err
}

// ParseTenantID parses a non-nil UUID string.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant id")
	return TenantID(u), err
}

// ParseEventID parses a non-nil UUID string.
func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event id")
	return EventID(u), err
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, what+" required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, what+" cannot be nil")
	}
	return u, nil
}

func (id RecordID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id TenantID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *RecordID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TenantID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EventID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
