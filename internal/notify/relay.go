// Package notify forwards accepted applications to external sinks. Delivery
// is best effort: one attempt per record and sink, failures are logged and
// counted but never reach the submitter.
package notify

import (
	"context"
	"log/slog"

	"enlist/internal/submission/models"
)

// Relay delivers one record to one sink.
type Relay interface {
	Name() string
	Send(ctx context.Context, record *models.ActionRecord) error
}

// LogRelay writes the record to the application log. It is the sink used
// when nothing external is configured.
type LogRelay struct {
	logger *slog.Logger
}

func NewLogRelay(logger *slog.Logger) *LogRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRelay{logger: logger}
}

func (r *LogRelay) Name() string { return "log" }

func (r *LogRelay) Send(ctx context.Context, record *models.ActionRecord) error {
	r.logger.InfoContext(ctx, "application_received",
		"record_id", record.ID.String(),
		"identity_id", record.Applicant.ID.String(),
		"applicant", record.Applicant.DisplayName,
		"description", record.Description,
		"answers", len(record.Answers),
		"submitted_at", record.SubmittedAt,
	)
	return nil
}
