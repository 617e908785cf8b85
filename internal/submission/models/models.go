package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"enlist/pkg/domain"
	dErrors "enlist/pkg/domain-errors"
)

const (
	DefaultDescription = "No description provided"

	MaxDescriptionLength = 4096
	MaxAnswers           = 25
	MaxAnswerKeyLength   = 256
	MaxAnswerLength      = 1024

	// MaxTotalLength bounds the description plus every answer name and value.
	// Discord caps a whole embed at 6000 characters; the rest of that budget
	// is kept for the title (at most 256) and the applicant footer.
	MaxTotalLength = 5500
)

// Answer is one extra form field, carried to the notification as-is.
type Answer struct {
	Question string `json:"question"`
	Value    string `json:"value"`
}

// Payload is a submitted application.
type Payload struct {
	Description string
	Answers     []Answer
}

// NewPayload builds a payload from decoded top-level string fields. The
// "description" key becomes Description; every other non-empty field becomes
// an Answer, ordered by key.
func NewPayload(fields map[string]string) Payload {
	p := Payload{Description: strings.TrimSpace(fields["description"])}
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if k == "description" || strings.TrimSpace(v) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.Answers = append(p.Answers, Answer{Question: k, Value: strings.TrimSpace(fields[k])})
	}
	return p
}

// Validate enforces per-field and total size limits, counted in characters.
func (p Payload) Validate() error {
	total := utf8.RuneCountInString(p.Description)
	if total > MaxDescriptionLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength))
	}
	if len(p.Answers) > MaxAnswers {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d answers are accepted", MaxAnswers))
	}
	for _, a := range p.Answers {
		if utf8.RuneCountInString(a.Question) > MaxAnswerKeyLength {
			return dErrors.New(dErrors.CodeValidation, "answer name is too long")
		}
		if utf8.RuneCountInString(a.Value) > MaxAnswerLength {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("answer %q must be at most %d characters", a.Question, MaxAnswerLength))
		}
		total += utf8.RuneCountInString(a.Question) + utf8.RuneCountInString(a.Value)
	}
	if total > MaxTotalLength {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("application must be at most %d characters in total", MaxTotalLength))
	}
	return nil
}

// Applicant is the identity attribution carried on an action record.
type Applicant struct {
	ID            domain.IdentityID `json:"id"`
	Username      string            `json:"username"`
	Discriminator string            `json:"discriminator,omitempty"`
	Avatar        string            `json:"avatar,omitempty"`
	DisplayName   string            `json:"display_name"`
}

// ActionRecord describes one accepted application. It is built after the
// cooldown write commits and handed to the notification relay once.
type ActionRecord struct {
	ID          uuid.UUID `json:"id"`
	Applicant   Applicant `json:"applicant"`
	Description string    `json:"description"`
	Answers     []Answer  `json:"answers,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewActionRecord attributes payload to ident at the committed timestamp.
func NewActionRecord(ident *domain.Identity, payload Payload, at time.Time) *ActionRecord {
	description := payload.Description
	if description == "" {
		description = DefaultDescription
	}
	return &ActionRecord{
		ID: uuid.New(),
		Applicant: Applicant{
			ID:            ident.ID,
			Username:      ident.Username,
			Discriminator: ident.Discriminator,
			Avatar:        ident.Avatar,
			DisplayName:   ident.DisplayName(),
		},
		Description: description,
		Answers:     payload.Answers,
		SubmittedAt: at.UTC(),
	}
}

// Receipt is what the submitter learns about an accepted application.
type Receipt struct {
	RecordID     uuid.UUID
	SubmittedAt  time.Time
	NextEligible time.Time
}

// Eligibility is the entry page's soft check result.
type Eligibility struct {
	Eligible      bool
	RemainingDays int
	AvailableAt   time.Time
}

// CooldownActiveError reports a blocked submission with enough detail to
// render the wait. It unwraps to a cooldown_active coded error.
type CooldownActiveError struct {
	RemainingDays int
	AvailableAt   time.Time
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("cooldown active: %d day(s) remaining", e.RemainingDays)
}

func (e *CooldownActiveError) Unwrap() error {
	return dErrors.New(dErrors.CodeCooldownActive, e.Error())
}
