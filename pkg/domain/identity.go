package domain

import (
	dErrors "enlist/pkg/domain-errors"
)

const maxIdentityIDLength = 64

// IdentityID is the provider's stable external identifier. It is opaque to the
// gate: equality is the only operation that matters.
type IdentityID string

// ParseIdentityID validates an identifier at a trust boundary. Only ASCII
// letters, digits, '-', '_' and '.' are accepted so the value is safe as a
// store key segment.
func ParseIdentityID(s string) (IdentityID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "identity id is required")
	}
	if len(s) > maxIdentityIDLength {
		return "", dErrors.New(dErrors.CodeValidation, "identity id is too long")
	}
	for i := 0; i < len(s); i++ {
		if !isIDByte(s[i]) {
			return "", dErrors.New(dErrors.CodeValidation, "identity id contains invalid characters")
		}
	}
	return IdentityID(s), nil
}

func (id IdentityID) String() string {
	return string(id)
}

func (id IdentityID) IsZero() bool {
	return id == ""
}

func isIDByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.':
		return true
	}
	return false
}

// Identity is the authenticated principal bound to a browser session.
// Discriminator and Avatar are provider extras passed through untouched.
type Identity struct {
	ID            IdentityID
	Username      string
	Discriminator string
	Avatar        string
}

// Complete reports whether the identity carries everything the gate needs.
// Sessions never hold a partial identity.
func (i *Identity) Complete() bool {
	return i != nil && !i.ID.IsZero() && i.Username != ""
}

// DisplayName renders "username#discriminator", dropping the legacy "0"
// discriminator that migrated accounts report.
func (i *Identity) DisplayName() string {
	if i.Discriminator == "" || i.Discriminator == "0" {
		return i.Username
	}
	return i.Username + "#" + i.Discriminator
}

// Equal compares identities by external identifier only.
func (i *Identity) Equal(other *Identity) bool {
	if i == nil || other == nil {
		return i == other
	}
	return i.ID == other.ID
}
