package usecase

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

//go:embed script.yaml
var defaultScript []byte

// Script holds the fixed interviewer lines and the voice cards.
type Script struct {
	Greetings         []string       `yaml:"greetings"`
	Thanks            []string       `yaml:"thanks"`
	FallbackQuestions []string       `yaml:"fallback_questions"`
	UnclearFeedback   string         `yaml:"unclear_feedback"`
	Voices            []domain.Voice `yaml:"voices"`

	// pick returns an index in [0,n). Defaults to math/rand.
	pick func(n int) int
}

// LoadScript parses the embedded script.
func LoadScript() (*Script, error) {
	return ParseScript(defaultScript)
}

// ParseScript parses and validates a script document.
func ParseScript(b []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("op=usecase.ParseScript: %w", err)
	}
	switch {
	case len(s.Greetings) == 0:
		return nil, fmt.Errorf("op=usecase.ParseScript: %w: no greetings", domain.ErrConfiguration)
	case len(s.Thanks) == 0:
		return nil, fmt.Errorf("op=usecase.ParseScript: %w: no thanks messages", domain.ErrConfiguration)
	case len(s.FallbackQuestions) == 0:
		return nil, fmt.Errorf("op=usecase.ParseScript: %w: no fallback questions", domain.ErrConfiguration)
	case len(s.Voices) == 0:
		return nil, fmt.Errorf("op=usecase.ParseScript: %w: no voices", domain.ErrConfiguration)
	case strings.TrimSpace(s.UnclearFeedback) == "":
		return nil, fmt.Errorf("op=usecase.ParseScript: %w: no unclear feedback message", domain.ErrConfiguration)
	}
	s.pick = rand.IntN
	return &s, nil
}

// WithPicker replaces the random template picker. Used by tests.
func (s *Script) WithPicker(pick func(n int) int) *Script {
	cp := *s
	cp.pick = pick
	return &cp
}

func fill(tmpl, name, interviewer string) string {
	return strings.NewReplacer("{name}", name, "{interviewer}", interviewer).Replace(tmpl)
}

// Greeting returns a random greeting addressed to name; it ends with the first question.
func (s *Script) Greeting(name, interviewer string) string {
	return fill(s.Greetings[s.pick(len(s.Greetings))], name, interviewer)
}

// ThanksMessage returns a random closing line addressed to name.
func (s *Script) ThanksMessage(name string) string {
	return fill(s.Thanks[s.pick(len(s.Thanks))], name, "")
}

// FallbackQuestion rotates through the fallback questions by question index.
func (s *Script) FallbackQuestion(questionIndex int) string {
	if questionIndex < 1 {
		questionIndex = 1
	}
	return s.FallbackQuestions[(questionIndex-1)%len(s.FallbackQuestions)]
}

// GenericQuestion is the question used when analysis produced nothing in time.
func (s *Script) GenericQuestion() string { return s.FallbackQuestions[0] }

// Voice finds a voice card by key or display name, case-insensitively.
func (s *Script) Voice(key string) (domain.Voice, bool) {
	key = strings.TrimSpace(key)
	for _, v := range s.Voices {
		if strings.EqualFold(v.Key, key) || strings.EqualFold(v.Name, key) {
			return v, true
		}
	}
	return domain.Voice{}, false
}
