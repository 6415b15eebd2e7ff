package domain

import (
	"github.com/google/uuid"

	dErrors "qualtrack/pkg/domain-errors"
)

// Typed identifiers keep holder, record and request IDs from being swapped at
// call sites. All of them are UUIDs underneath.
type (
	HolderID     uuid.UUID
	OrgID        uuid.UUID
	DefinitionID uuid.UUID
	CategoryID   uuid.UUID
	RecordID     uuid.UUID
	RequestID    uuid.UUID
)

func (id HolderID) String() string     { return uuid.UUID(id).String() }
func (id OrgID) String() string        { return uuid.UUID(id).String() }
func (id DefinitionID) String() string { return uuid.UUID(id).String() }
func (id CategoryID) String() string   { return uuid.UUID(id).String() }
func (id RecordID) String() string     { return uuid.UUID(id).String() }
func (id RequestID) String() string    { return uuid.UUID(id).String() }

func (id HolderID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id OrgID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id DefinitionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id CategoryID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id HolderID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id OrgID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id DefinitionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id CategoryID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id RecordID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id RequestID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *HolderID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *OrgID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DefinitionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CategoryID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RecordID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RequestID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }

// ParseHolderID parses a holder id received at a trust boundary.
func ParseHolderID(s string) (HolderID, error) {
	u, err := parseUUID(s, "holder id")
	return HolderID(u), err
}

// ParseOrgID parses an organization id.
func ParseOrgID(s string) (OrgID, error) {
	u, err := parseUUID(s, "organization id")
	return OrgID(u), err
}

// ParseDefinitionID parses a competency definition id.
func ParseDefinitionID(s string) (DefinitionID, error) {
	u, err := parseUUID(s, "definition id")
	return DefinitionID(u), err
}

// ParseRecordID parses a competency record id.
func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record id")
	return RecordID(u), err
}

// ParseRequestID parses a permission request id.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request id")
	return RequestID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
