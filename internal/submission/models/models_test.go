package models

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enlist/pkg/domain"
	dErrors "enlist/pkg/domain-errors"
)

func TestNewPayload(t *testing.T) {
	p := NewPayload(map[string]string{
		"description": "  I can fly helicopters  ",
		"timezone":    "CET",
		"age":         " 27 ",
		"empty":       "   ",
	})

	assert.Equal(t, "I can fly helicopters", p.Description)
	assert.Equal(t, []Answer{{Question: "age", Value: "27"}, {Question: "timezone", Value: "CET"}}, p.Answers)
}

func TestPayloadValidate(t *testing.T) {
	tooMany := map[string]string{}
	for i := 0; i <= MaxAnswers; i++ {
		tooMany["q"+strings.Repeat("x", i)] = "a"
	}

	// Every field within its own limit, but together over the total.
	oversized := Payload{Description: strings.Repeat("d", MaxDescriptionLength)}
	for i := range MaxAnswers {
		oversized.Answers = append(oversized.Answers, Answer{Question: fmt.Sprintf("q%02d", i), Value: strings.Repeat("a", MaxAnswerLength)})
	}
	atTotal := Payload{
		Description: strings.Repeat("d", MaxDescriptionLength),
		Answers: []Answer{
			{Question: "q1", Value: strings.Repeat("a", MaxAnswerLength)},
			{Question: "q2", Value: strings.Repeat("a", MaxTotalLength-MaxDescriptionLength-MaxAnswerLength-4)},
		},
	}
	overTotal := atTotal
	overTotal.Answers = []Answer{atTotal.Answers[0], {Question: "q2", Value: atTotal.Answers[1].Value + "a"}}

	tests := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{"empty is fine", Payload{}, false},
		{"description at limit", Payload{Description: strings.Repeat("é", MaxDescriptionLength)}, false},
		{"description over limit", Payload{Description: strings.Repeat("a", MaxDescriptionLength+1)}, true},
		{"too many answers", NewPayload(tooMany), true},
		{"answer over limit", Payload{Answers: []Answer{{Question: "q", Value: strings.Repeat("a", MaxAnswerLength+1)}}}, true},
		{"answer key over limit", Payload{Answers: []Answer{{Question: strings.Repeat("k", MaxAnswerKeyLength+1), Value: "a"}}}, true},
		{"total at limit", atTotal, false},
		{"total one over limit", overTotal, true},
		{"every field at its limit", oversized, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestNewActionRecord(t *testing.T) {
	ident := &domain.Identity{ID: "U1", Username: "nelly", Discriminator: "1337", Avatar: "a_1"}
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.FixedZone("X", 7200))

	rec := NewActionRecord(ident, Payload{}, at)

	assert.NotEqual(t, [16]byte{}, [16]byte(rec.ID))
	assert.Equal(t, DefaultDescription, rec.Description)
	assert.Equal(t, "nelly#1337", rec.Applicant.DisplayName)
	assert.Equal(t, domain.IdentityID("U1"), rec.Applicant.ID)
	assert.Equal(t, time.UTC, rec.SubmittedAt.Location())
	assert.True(t, at.Equal(rec.SubmittedAt))

	other := NewActionRecord(ident, Payload{Description: "x"}, at)
	assert.NotEqual(t, rec.ID, other.ID)
	assert.Equal(t, "x", other.Description)
}

func TestCooldownActiveErrorCarriesCode(t *testing.T) {
	err := &CooldownActiveError{RemainingDays: 3, AvailableAt: time.Now()}

	assert.True(t, dErrors.HasCode(err, dErrors.CodeCooldownActive))
	assert.Equal(t, "cooldown active: 3 day(s) remaining", err.Error())
}
