// Package webhook posts accepted applications to a Discord channel webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"enlist/internal/submission/models"
)

const (
	DefaultTitle = "New Army Corps Application"
	// MaxTitleLength is Discord's embed title limit.
	MaxTitleLength = 256
	embedColor     = 3447003
	avatarCDN      = "https://cdn.discordapp.com/avatars"
)

type embedFooter struct {
	Text string `json:"text"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embed struct {
	Title       string       `json:"title"`
	Color       int          `json:"color"`
	Description string       `json:"description"`
	Timestamp   string       `json:"timestamp"`
	Footer      embedFooter  `json:"footer"`
	Fields      []embedField `json:"fields,omitempty"`
	Thumbnail   *embedImage  `json:"thumbnail,omitempty"`
}

type message struct {
	Embeds []embed `json:"embeds"`
}

// Relay sends one embed message per record.
type Relay struct {
	url    string
	title  string
	client *http.Client
}

type Option func(*Relay)

func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) {
		if c != nil {
			r.client = c
		}
	}
}

func WithTitle(title string) Option {
	return func(r *Relay) {
		if title != "" {
			r.title = title
		}
	}
}

func New(url string, opts ...Option) (*Relay, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	r := &Relay{
		url:    url,
		title:  DefaultTitle,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	if utf8.RuneCountInString(r.title) > MaxTitleLength {
		return nil, fmt.Errorf("webhook title must be at most %d characters", MaxTitleLength)
	}
	return r, nil
}

func (r *Relay) Name() string { return "webhook" }

// Send posts the record. Any non-2xx response is an error.
func (r *Relay) Send(ctx context.Context, record *models.ActionRecord) error {
	body, err := json.Marshal(message{Embeds: []embed{r.embedFor(record)}})
	if err != nil {
		return fmt.Errorf("encode webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (r *Relay) embedFor(record *models.ActionRecord) embed {
	e := embed{
		Title:       r.title,
		Color:       embedColor,
		Description: record.Description,
		Timestamp:   record.SubmittedAt.UTC().Format(time.RFC3339Nano),
		Footer: embedFooter{
			Text: fmt.Sprintf("Applicant: %s (%s)", record.Applicant.DisplayName, record.Applicant.ID),
		},
	}
	for _, a := range record.Answers {
		e.Fields = append(e.Fields, embedField{Name: a.Question, Value: a.Value})
	}
	if record.Applicant.Avatar != "" {
		e.Thumbnail = &embedImage{
			URL: fmt.Sprintf("%s/%s/%s.png", avatarCDN, record.Applicant.ID, record.Applicant.Avatar),
		}
	}
	return e
}
