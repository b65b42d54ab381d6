package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// Listing bounds for ListByCandidate.
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

const recordColumns = `id, session_id, candidate_name, job_description, resume_highlights, conversations, overall_score, created_at, updated_at`

// RecordRepo persists and loads interview records.
type RecordRepo struct{ Pool PgxPool }

// NewRecordRepo constructs a RecordRepo with the given pool.
func NewRecordRepo(p PgxPool) *RecordRepo { return &RecordRepo{Pool: p} }

var _ domain.RecordRepository = (*RecordRepo)(nil)

// Save inserts the record and returns its id. A record without an id gets a new UUID.
// Saving an id that already exists keeps the stored row, so retries never duplicate.
func (r *RecordRepo) Save(ctx domain.Context, rec domain.InterviewRecord) (string, error) {
	tracer := otel.Tracer("repo.records")
	ctx, span := tracer.Start(ctx, "records.Save")
	defer span.End()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	span.SetAttributes(attribute.String("record.id", rec.ID), attribute.Int("record.turns", len(rec.Conversations)))
	convs := rec.Conversations
	if convs == nil {
		convs = []domain.RecordTurn{}
	}
	convJSON, err := json.Marshal(convs)
	if err != nil {
		return "", fmt.Errorf("op=record.save: %w: %v", domain.ErrInternal, err)
	}
	q := `INSERT INTO interview_records (` + recordColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) ON CONFLICT (id) DO NOTHING`
	tag, err := r.Pool.Exec(ctx, q, rec.ID, rec.SessionID, rec.CandidateName, rec.JobDescription, rec.ResumeHighlights,
		convJSON, rec.OverallScore, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=record.save: %w", err)
	}
	span.SetAttributes(attribute.Bool("record.inserted", tag.RowsAffected() == 1))
	return rec.ID, nil
}

// Get loads a record by id.
func (r *RecordRepo) Get(ctx domain.Context, id string) (domain.InterviewRecord, error) {
	tracer := otel.Tracer("repo.records")
	ctx, span := tracer.Start(ctx, "records.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return domain.InterviewRecord{}, fmt.Errorf("op=record.get: %w: record %s", domain.ErrNotFound, id)
	}
	q := `SELECT ` + recordColumns + ` FROM interview_records WHERE id=$1`
	rec, err := scanRecord(r.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.InterviewRecord{}, fmt.Errorf("op=record.get: %w: record %s", domain.ErrNotFound, id)
	}
	if err != nil {
		span.RecordError(err)
		return domain.InterviewRecord{}, fmt.Errorf("op=record.get: %w", err)
	}
	return rec, nil
}

// ListByCandidate returns the newest records of a candidate first.
func (r *RecordRepo) ListByCandidate(ctx domain.Context, name string, limit int) ([]domain.InterviewRecord, error) {
	tracer := otel.Tracer("repo.records")
	ctx, span := tracer.Start(ctx, "records.ListByCandidate")
	defer span.End()

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q := `SELECT ` + recordColumns + ` FROM interview_records WHERE candidate_name=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, name, limit)
	if err != nil {
		return nil, fmt.Errorf("op=record.list: %w", err)
	}
	defer rows.Close()

	out := make([]domain.InterviewRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("op=record.list: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=record.list: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (domain.InterviewRecord, error) {
	var (
		rec      domain.InterviewRecord
		convJSON []byte
	)
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.CandidateName, &rec.JobDescription, &rec.ResumeHighlights,
		&convJSON, &rec.OverallScore, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return domain.InterviewRecord{}, err
	}
	if err := json.Unmarshal(convJSON, &rec.Conversations); err != nil {
		return domain.InterviewRecord{}, fmt.Errorf("%w: conversations: %v", domain.ErrInternal, err)
	}
	return rec, nil
}
