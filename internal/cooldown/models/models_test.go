package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTruncatesToMillisecondsUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	in := time.Date(2025, 3, 4, 5, 6, 7, 891_234_567, loc)

	got := Normalize(in)

	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 891_000_000, got.Nanosecond())
	assert.True(t, got.Equal(in.Truncate(time.Millisecond)))
	assert.True(t, Normalize(time.Time{}).IsZero())
}

func TestLastAction(t *testing.T) {
	var nilRecord *CooldownRecord
	assert.Nil(t, nilRecord.LastAction())
	assert.Nil(t, (&CooldownRecord{IdentityID: "U1"}).LastAction())

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := NewCooldownRecord("U1", at)
	last := rec.LastAction()
	if assert.NotNil(t, last) {
		assert.True(t, at.Equal(*last))
		*last = last.Add(time.Hour)
		assert.True(t, at.Equal(rec.LastActionAt), "LastAction returns a copy")
	}
}
