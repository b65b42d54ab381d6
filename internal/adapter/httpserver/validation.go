package httpserver

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New(validator.WithRequiredStructEnabled()) })
	return vld
}

// startForm holds the non-file fields of POST /v1/interviews.
type startForm struct {
	JobDescription string `validate:"required,max=20000"`
	MaxQuestions   int    `validate:"omitempty,min=1,max=10"`
	Voice          string `validate:"omitempty,alphanum,max=32"`
}

type answerRequest struct {
	Transcript string `json:"transcript" validate:"max=20000"`
}

type spokenRequest struct {
	Stage string `json:"stage" validate:"required,oneof=question thanks"`
}

type recordsQuery struct {
	Candidate string `validate:"required,max=200"`
	Limit     int    `validate:"omitempty,min=1,max=100"`
}

// validate runs struct validation and returns an ErrInvalidArgument together with
// per-field details.
func validate(v any) (map[string]string, error) {
	err := getValidator().Struct(v)
	if err == nil {
		return nil, nil
	}
	details := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			details[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return details, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument)
}

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// validID rejects path ids that could not have been issued by the service.
func validID(id string) bool { return idPattern.MatchString(id) }

var resumeExts = map[string]bool{".pdf": true, ".docx": true, ".txt": true, ".md": true}

// checkResumeUpload enforces the extension allowlist and sniffs the content so a
// renamed binary cannot pass as a résumé.
func checkResumeUpload(h *multipart.FileHeader, data []byte) error {
	ext := strings.ToLower(filepath.Ext(h.Filename))
	if !resumeExts[ext] {
		return fmt.Errorf("%w: unsupported resume type %q", domain.ErrInvalidArgument, ext)
	}
	m := mimetype.Detect(data)
	switch {
	case m.Is("application/pdf"):
		if ext == ".pdf" {
			return nil
		}
	case m.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"), m.Is("application/zip"):
		if ext == ".docx" {
			return nil
		}
	case strings.HasPrefix(m.String(), "text/"):
		if ext == ".txt" || ext == ".md" {
			return nil
		}
	}
	return fmt.Errorf("%w: resume content %s does not match %s", domain.ErrInvalidArgument, m.String(), ext)
}

// audioType resolves the recording's media type from the part header, falling back to
// content sniffing. Browser recordings are usually webm, which sniffs as video/webm.
func audioType(h *multipart.FileHeader, data []byte) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(h.Header.Get("Content-Type")))
	if ct == "" || ct == "application/octet-stream" {
		ct = mimetype.Detect(data).String()
	}
	base := ct
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if strings.HasPrefix(base, "audio/") || base == "video/webm" || base == "application/ogg" {
		return ct, nil
	}
	return "", fmt.Errorf("%w: unsupported audio type %q", domain.ErrInvalidArgument, ct)
}
