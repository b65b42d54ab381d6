// Package archive writes finalized interview records as candidate-keyed JSON files.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/pkg/textx"
)

// FileSuffix ends every artifact name.
const FileSuffix = "_interview_data.json"

// Writer stores records under Dir.
type Writer struct {
	Dir string
}

// NewWriter returns a Writer for dir, defaulting to "outputs".
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "outputs"
	}
	return &Writer{Dir: dir}
}

// FileName is the artifact name of a candidate. Names are reduced to a safe slug so
// they can never escape Dir.
func FileName(candidate string) string {
	slug := textx.Slug(candidate)
	if slug == "" {
		slug = "candidate"
	}
	return slug + FileSuffix
}

// Write stores rec, replacing any earlier artifact of the same candidate, and
// returns the file path. The file is renamed into place so readers never see a
// partial document.
func (w *Writer) Write(ctx context.Context, rec domain.InterviewRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("op=archive.Write: %w", err)
	}
	if err := os.MkdirAll(w.Dir, 0o750); err != nil {
		return "", fmt.Errorf("op=archive.Write: %w", err)
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("op=archive.Write: %w: %v", domain.ErrInternal, err)
	}

	path := filepath.Join(w.Dir, FileName(rec.CandidateName))
	tmp, err := os.CreateTemp(w.Dir, ".archive-*.tmp")
	if err != nil {
		return "", fmt.Errorf("op=archive.Write: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("op=archive.Write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("op=archive.Write: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("op=archive.Write: %w", err)
	}
	return path, nil
}
