// Package quiz takes a single quiz activity from "not started" to "submitted" by replaying the
// requests a learner's browser would make.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("coursepilot.lms.quiz")

var (
	ErrMissingContext  = errors.New("could not derive the quiz context id")
	ErrAttemptStart    = errors.New("starting the attempt did not redirect to an attempt")
	ErrNoAnswerOptions = errors.New("question has no selectable answer")
)

// SubmitLabel is the label of the button that ends an attempt, it is posted as the `next` field.
const SubmitLabel = "Finalizar tentativa ..."

// Stage is a step of an attempt, a flow goes through every stage once and in order.
type Stage int

const (
	StageFetchExam Stage = iota
	StageStartAttempt
	StageExtractQuestion
	StageSubmitAndFinish
)

func (s Stage) String() string {
	switch s {
	case StageFetchExam:
		return "fetch-exam"
	case StageStartAttempt:
		return "start-attempt"
	case StageExtractQuestion:
		return "extract-question"
	case StageSubmitAndFinish:
		return "submit-and-finish"
	default:
		return "unknown"
	}
}

// StageError records the stage a flow was aborted at.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("quiz %s: %s", e.Stage, e.Err.Error())
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Client is the subset of the platform http client a flow needs.
type Client interface {
	Get(ctx context.Context, target string) (*resty.Response, error)
	PostForm(ctx context.Context, target string, form map[string]string) (*resty.Response, error)
	PostMultipart(ctx context.Context, target string, fields map[string]string) (*resty.Response, error)
}

// Picker returns the index of the answer to submit out of n > 0 options.
type Picker func(n int) int

// UniformPicker picks every option with equal probability. A nil source uses the global
// generator.
func UniformPicker(src *rand.Rand) Picker {
	if src == nil {
		return func(n int) int {
			return rand.IntN(n)
		}
	}
	return func(n int) int {
		return src.IntN(n)
	}
}

// ExamContext identifies a quiz instance and the anti-CSRF token of the session, it is derived
// again on every run.
type ExamContext struct {
	ContextId string
	Sesskey   string
}

// AttemptHandle identifies an attempt in progress.
type AttemptHandle struct {
	AttemptId string
	Sesskey   string
	// RedirectUrl is where starting the attempt landed, the first question page.
	RedirectUrl string
}

// Result describes a submitted attempt.
type Result struct {
	Exam      ExamContext
	AttemptId string
	// Answer is the option that was submitted.
	Answer AnswerChoice
	// FinalUrl is where finishing the attempt redirected to.
	FinalUrl string
}

// AnswerChoice is the option picked for the question.
type AnswerChoice struct {
	Name  string
	Value string
}
