package usecase

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai/tokencount"
)

// Prompt names, also used as schema keys and metric labels.
const (
	PromptResume       = "resume"
	PromptNextQuestion = "next_question"
	PromptFeedback     = "feedback"
)

const resumeTemplate = `Task: Act as an expert resume parser and talent acquisition specialist. Extract the candidate's details from the resume below.

Instructions:
1. Name: the candidate's full name as it appears on the resume (headers, contact section or top of the page).
2. Highlights: the 5-7 most compelling highlights. Prefer quantified achievements, leadership, relevant technical skills and certifications, notable projects, awards, and distinctive experience. Keep each highlight specific and results-focused.

Resume Content:
{{.Resume}}

Output Requirements:
- Respond ONLY with strict JSON, no other text or formatting.

Response Format:
{"name": "<full name>", "resume_highlights": "<paragraphs of highlights>"}
`

const nextQuestionTemplate = `Task: Act as an expert interviewer. Generate the next interview question so the conversation flows naturally while assessing the candidate's fit for the role.

Context:
- Previous Question: {{.Question}}
- Candidate's Response: {{.Answer}}
- Job Description: {{.JobDescription}}
- Resume Highlights: {{.ResumeHighlights}}

Strategy:
1. Look at how complete and deep the response was, what deserves a follow-up, and which gaps need probing.
2. Build on the conversation, increase depth gradually, and cover different competencies (behavioral, technical, situational, problem-solving, cultural fit).
3. Ask one open-ended, unambiguous question. Avoid repeating earlier ground, yes/no questions, leading questions and personal topics.

Output Requirements:
- Respond ONLY with strict JSON, no other text or formatting.

Response Format:
{"next_question": "<one open-ended question>"}
`

const feedbackTemplate = `Task: Act as an expert interviewer and coach. Assess the candidate's answer and give actionable feedback.

Assessment Context:
- Interview Question: {{.Question}}
- Candidate Response: {{.Answer}}
- Job Description: {{.JobDescription}}
- Resume Highlights: {{.ResumeHighlights}}

Evaluate relevance, completeness, structure, specificity, impact and professionalism, and how well the answer matches the role.

Scoring Guide (1-10):
- 9-10: exceptional, exceeds expectations
- 7-8: strong, meets most requirements
- 5-6: adequate, with gaps or missed opportunities
- 3-4: below average, significant areas to improve
- 1-2: poor, does not address the question

Output Requirements:
- Respond ONLY with strict JSON, no other text or formatting.
- Keep the feedback under 90 words, covering strengths, improvements and one recommendation.

Response Format:
{"feedback": "<feedback under 90 words>", "score": <number from 1 to 10>}
`

// Schemas are the response contracts of each prompt.
var Schemas = map[string]string{
	PromptResume: `{
  "type": "object",
  "required": ["name", "resume_highlights"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "resume_highlights": {"type": "string", "minLength": 1}
  }
}`,
	PromptNextQuestion: `{
  "type": "object",
  "required": ["next_question"],
  "properties": {"next_question": {"type": "string", "minLength": 1}}
}`,
	PromptFeedback: `{
  "type": "object",
  "required": ["feedback", "score"],
  "properties": {
    "feedback": {"type": "string", "minLength": 1},
    "score": {"type": "number", "minimum": 1, "maximum": 10}
  }
}`,
}

var (
	resumeTmpl       = template.Must(template.New(PromptResume).Parse(resumeTemplate))
	nextQuestionTmpl = template.Must(template.New(PromptNextQuestion).Parse(nextQuestionTemplate))
	feedbackTmpl     = template.Must(template.New(PromptFeedback).Parse(feedbackTemplate))
)

// Prompts renders the fixed templates. Free-text inputs are cut to Budget tokens each
// so a long résumé or job description cannot blow the model context.
type Prompts struct {
	Counter *tokencount.Counter
	Model   string
	Budget  int
}

type answerVars struct {
	Question         string
	Answer           string
	JobDescription   string
	ResumeHighlights string
}

func (p Prompts) trim(s string) string {
	if p.Counter == nil || p.Budget <= 0 {
		return s
	}
	out, _ := p.Counter.Truncate(s, p.Model, p.Budget)
	return out
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("op=usecase.render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// Resume renders the résumé extraction prompt.
func (p Prompts) Resume(resume string) (string, error) {
	return render(resumeTmpl, struct{ Resume string }{p.trim(resume)})
}

// NextQuestion renders the next-question prompt.
func (p Prompts) NextQuestion(in AnalyzeInput) (string, error) {
	return render(nextQuestionTmpl, p.vars(in))
}

// Feedback renders the feedback prompt.
func (p Prompts) Feedback(in AnalyzeInput) (string, error) {
	return render(feedbackTmpl, p.vars(in))
}

func (p Prompts) vars(in AnalyzeInput) answerVars {
	return answerVars{
		Question:         in.Question,
		Answer:           p.trim(in.CandidateAnswer),
		JobDescription:   p.trim(in.JobDescription),
		ResumeHighlights: p.trim(in.ResumeHighlights),
	}
}
