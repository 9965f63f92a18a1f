// Package lesson defines the structured lesson produced by the generation
// pipeline and the validator that turns raw model output into one.
//
// A [Lesson] is only ever obtained through [Validate]; a lesson that comes out
// of it satisfies every structural rule and is not mutated afterwards.
package lesson

import (
	"encoding/json"
	"fmt"
)

// QuestionsPerQuiz is the exact number of questions a quiz step must carry.
const QuestionsPerQuiz = 3

// StepType discriminates the two kinds of lesson step.
type StepType string

const (
	// StepContent is an explanatory step with a title and body text.
	StepContent StepType = "content"

	// StepQuiz is a comprehension check with exactly [QuestionsPerQuiz] questions.
	StepQuiz StepType = "quiz"
)

// IsValid reports whether t is a recognised step type.
func (t StepType) IsValid() bool {
	return t == StepContent || t == StepQuiz
}

// Lesson is an ordered, ADHD-friendly learning unit.
type Lesson struct {
	Title    string `json:"lessonTitle"`
	Overview string `json:"lessonOverview"`
	Steps    []Step `json:"steps"`
}

// Step is a tagged union: exactly one of Content or Quiz is set, matching Type.
type Step struct {
	Type    StepType
	Content *ContentStep
	Quiz    *QuizStep
}

// ContentStep carries a chunk of lesson material.
type ContentStep struct {
	Title string `json:"title"`
	Body  string `json:"content"`
}

// QuizStep carries a short comprehension check.
type QuizStep struct {
	// Label is the optional quiz title. Empty when the model omitted it.
	Label     string     `json:"quizTitle,omitempty"`
	Questions []Question `json:"questions"`
}

// Question is a single multiple-choice question.
//
// CorrectAnswer is not guaranteed to appear in Options.
type Question struct {
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// MarshalJSON encodes the step in the flat wire shape it is decoded from:
// a "type" discriminator next to the variant's own fields.
func (s Step) MarshalJSON() ([]byte, error) {
	switch s.Type {
	case StepContent:
		if s.Content == nil {
			return nil, fmt.Errorf("lesson: content step without content")
		}
		return json.Marshal(struct {
			Type StepType `json:"type"`
			ContentStep
		}{s.Type, *s.Content})
	case StepQuiz:
		if s.Quiz == nil {
			return nil, fmt.Errorf("lesson: quiz step without quiz")
		}
		return json.Marshal(struct {
			Type StepType `json:"type"`
			QuizStep
		}{s.Type, *s.Quiz})
	default:
		return nil, fmt.Errorf("lesson: cannot encode step of type %q", s.Type)
	}
}

// Questions returns the total number of quiz questions in the lesson.
func (l *Lesson) Questions() int {
	n := 0
	for _, s := range l.Steps {
		if s.Quiz != nil {
			n += len(s.Quiz.Questions)
		}
	}
	return n
}
