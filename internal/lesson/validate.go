package lesson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid marks model output that could not be turned into a [Lesson].
// Every error returned by [Validate] matches it with [errors.Is].
var ErrInvalid = errors.New("lesson: invalid")

// ValidationError describes why a candidate lesson was rejected.
type ValidationError struct {
	// Path locates the offending value, e.g. "steps[2].questions". Empty for
	// problems with the document as a whole.
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "lesson: invalid: " + e.Reason
	}
	return "lesson: invalid: " + e.Path + ": " + e.Reason
}

// Unwrap lets callers match the error against [ErrInvalid].
func (e *ValidationError) Unwrap() error { return ErrInvalid }

func invalid(path, format string, args ...any) error {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Sanitize trims raw and strips everything before the first '{' or '[' and
// everything after the last '}' or ']'. It returns "" when raw contains no
// opening or no closing bracket.
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	s = s[start:]
	end := strings.LastIndexAny(s, "}]")
	if end < 0 {
		return ""
	}
	return s[:end+1]
}

// Validate sanitizes raw, parses it as JSON and decodes it against the lesson
// schema. The lesson is accepted or rejected as a whole: a single malformed
// step rejects everything.
func Validate(raw string) (l *Lesson, err error) {
	defer func() {
		if r := recover(); r != nil {
			l = nil
			err = invalid("", "decode panic: %v", r)
		}
	}()

	doc := Sanitize(raw)
	if doc == "" {
		return nil, invalid("", "no JSON value found")
	}
	if !json.Valid([]byte(doc)) {
		return nil, invalid("", "malformed JSON")
	}

	top, err := object(json.RawMessage(doc), "")
	if err != nil {
		return nil, err
	}

	out := &Lesson{}
	if out.Title, err = requireString(top, "lessonTitle", ""); err != nil {
		return nil, err
	}
	if out.Overview, err = requireString(top, "lessonOverview", ""); err != nil {
		return nil, err
	}
	rawSteps, err := requireArray(top, "steps", "")
	if err != nil {
		return nil, err
	}

	out.Steps = make([]Step, 0, len(rawSteps))
	for i, rs := range rawSteps {
		step, err := decodeStep(rs, fmt.Sprintf("steps[%d]", i))
		if err != nil {
			return nil, err
		}
		out.Steps = append(out.Steps, step)
	}
	return out, nil
}

func decodeStep(raw json.RawMessage, path string) (Step, error) {
	obj, err := object(raw, path)
	if err != nil {
		return Step{}, err
	}

	var typ StepType
	if v, ok := obj["type"]; ok && kind(v) == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return Step{}, invalid(path+".type", "%v", err)
		}
		typ = StepType(s)
	}

	switch typ {
	case StepContent:
		c := &ContentStep{}
		if c.Title, err = requireString(obj, "title", path); err != nil {
			return Step{}, err
		}
		if c.Body, err = requireString(obj, "content", path); err != nil {
			return Step{}, err
		}
		return Step{Type: StepContent, Content: c}, nil

	case StepQuiz:
		q := &QuizStep{}
		// quizTitle is optional; a non-string value is ignored.
		if v, ok := obj["quizTitle"]; ok && kind(v) == '"' {
			_ = json.Unmarshal(v, &q.Label)
		}
		rawQs, err := requireArray(obj, "questions", path)
		if err != nil {
			return Step{}, err
		}
		if len(rawQs) != QuestionsPerQuiz {
			return Step{}, invalid(path+".questions", "want exactly %d questions, got %d", QuestionsPerQuiz, len(rawQs))
		}
		q.Questions = make([]Question, 0, len(rawQs))
		for i, rq := range rawQs {
			question, err := decodeQuestion(rq, fmt.Sprintf("%s.questions[%d]", path, i))
			if err != nil {
				return Step{}, err
			}
			q.Questions = append(q.Questions, question)
		}
		return Step{Type: StepQuiz, Quiz: q}, nil

	default:
		return Step{}, invalid(path+".type", "unknown step type %s", describe(obj["type"]))
	}
}

func decodeQuestion(raw json.RawMessage, path string) (Question, error) {
	obj, err := object(raw, path)
	if err != nil {
		return Question{}, err
	}

	var q Question
	if q.Prompt, err = requireString(obj, "question", path); err != nil {
		return Question{}, err
	}
	opts, err := requireArray(obj, "options", path)
	if err != nil {
		return Question{}, err
	}
	q.Options = make([]string, 0, len(opts))
	for i, o := range opts {
		if kind(o) != '"' {
			return Question{}, invalid(fmt.Sprintf("%s.options[%d]", path, i), "want string, got %s", describe(o))
		}
		var s string
		if err := json.Unmarshal(o, &s); err != nil {
			return Question{}, invalid(fmt.Sprintf("%s.options[%d]", path, i), "%v", err)
		}
		q.Options = append(q.Options, s)
	}
	if q.CorrectAnswer, err = requireString(obj, "correctAnswer", path); err != nil {
		return Question{}, err
	}
	return q, nil
}

// object decodes raw as a JSON object, keeping member values undecoded.
func object(raw json.RawMessage, path string) (map[string]json.RawMessage, error) {
	if kind(raw) != '{' {
		return nil, invalid(path, "want object, got %s", describe(raw))
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, invalid(path, "%v", err)
	}
	return m, nil
}

func requireString(obj map[string]json.RawMessage, key, path string) (string, error) {
	p := join(path, key)
	v, ok := obj[key]
	if !ok {
		return "", invalid(p, "missing")
	}
	if kind(v) != '"' {
		return "", invalid(p, "want string, got %s", describe(v))
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", invalid(p, "%v", err)
	}
	return s, nil
}

func requireArray(obj map[string]json.RawMessage, key, path string) ([]json.RawMessage, error) {
	p := join(path, key)
	v, ok := obj[key]
	if !ok {
		return nil, invalid(p, "missing")
	}
	if kind(v) != '[' {
		return nil, invalid(p, "want array, got %s", describe(v))
	}
	var a []json.RawMessage
	if err := json.Unmarshal(v, &a); err != nil {
		return nil, invalid(p, "%v", err)
	}
	return a, nil
}

// kind returns the first significant byte of a JSON value, or 0 if empty.
func kind(raw json.RawMessage) byte {
	b := bytes.TrimLeft(raw, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

// describe names the JSON kind of raw for error messages.
func describe(raw json.RawMessage) string {
	switch k := kind(raw); {
	case raw == nil:
		return "nothing"
	case k == '{':
		return "object"
	case k == '[':
		return "array"
	case k == '"':
		return "string " + string(bytes.TrimSpace(raw))
	case k == 'n':
		return "null"
	case k == 't' || k == 'f':
		return "boolean"
	default:
		return "number"
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
