package models

import (
	"context"
	"time"

	"enlist/pkg/domain"
)

// CooldownRecord is the persisted last-action time for one identity.
// A record with a zero LastActionAt means the identity has never acted.
type CooldownRecord struct {
	IdentityID   domain.IdentityID
	LastActionAt time.Time
}

// NewCooldownRecord builds a record with the timestamp truncated to epoch
// milliseconds, the precision every backend stores.
func NewCooldownRecord(id domain.IdentityID, at time.Time) *CooldownRecord {
	return &CooldownRecord{IdentityID: id, LastActionAt: Normalize(at)}
}

// Normalize truncates t to millisecond precision in UTC.
func Normalize(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// LastAction returns a pointer suitable for gate evaluation, nil when never acted.
func (r *CooldownRecord) LastAction() *time.Time {
	if r == nil || r.LastActionAt.IsZero() {
		return nil
	}
	t := r.LastActionAt
	return &t
}

// Store is the durable identity -> last-action mapping.
type Store interface {
	// Get returns nil, nil when the identity has never acted.
	Get(ctx context.Context, id domain.IdentityID) (*CooldownRecord, error)
	// Set stores at for id. A stored value is never lowered.
	Set(ctx context.Context, id domain.IdentityID, at time.Time) error
	// Execute runs validate against the current record (zero LastActionAt when
	// absent) and, only if it returns nil, writes at. Validation and write are
	// atomic per identity. The validate error is returned unchanged.
	Execute(ctx context.Context, id domain.IdentityID, validate func(*CooldownRecord) error, at time.Time) (*CooldownRecord, error)
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}
