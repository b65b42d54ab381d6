package usecase

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// RecordWriter stores the JSON artifact of a finalized interview.
type RecordWriter interface {
	Write(ctx context.Context, rec domain.InterviewRecord) (string, error)
}

// ArchiveService handles interview-completed events in the worker.
type ArchiveService struct {
	Writer RecordWriter
}

// Handle writes the event's record. Events without a record id are rejected because
// the artifact could not be correlated with the stored row.
func (s ArchiveService) Handle(ctx context.Context, ev domain.InterviewCompletedEvent) error {
	lg := observability.LoggerFromContext(ctx)
	if ev.Record.ID == "" {
		observability.RecordsArchivedTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("op=usecase.Archive: %w: event without record id", domain.ErrInvalidArgument)
	}
	path, err := s.Writer.Write(ctx, ev.Record)
	if err != nil {
		observability.RecordsArchivedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("op=usecase.Archive: %w", err)
	}
	observability.RecordsArchivedTotal.WithLabelValues("ok").Inc()
	lg.Info("interview archived", "record_id", ev.Record.ID, "path", path)
	return nil
}
