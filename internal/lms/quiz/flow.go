package quiz

import (
	"context"
	"coursepilot/internal/components/assert"
	"coursepilot/internal/components/telemetry"
	"coursepilot/internal/lms"
	"coursepilot/internal/lms/extract"
	"coursepilot/internal/lms/httpclient"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_flow_fetch_exam        = "flow.fetch-exam"
	report_flow_start_attempt     = "flow.start-attempt"
	report_flow_extract_question  = "flow.extract-question"
	report_flow_submit_and_finish = "flow.submit-and-finish"
)

// Flow runs quiz attempts. A Flow holds no per-attempt state, so every Run derives a fresh
// ExamContext and AttemptHandle.
type Flow struct {
	client Client
	pick   Picker
	tel    telemetry.API
}

// NewFlow creates a Flow, a nil picker defaults to UniformPicker(nil).
func NewFlow(client Client, tel telemetry.API, pick Picker) *Flow {
	assert.NotNil(client)
	assert.NotNil(tel)
	if pick == nil {
		pick = UniformPicker(nil)
	}
	return &Flow{
		client: client,
		pick:   pick,
		tel:    telemetry.NewScopedAPI("quiz", tel),
	}
}

func fail(span trace.Span, stage Stage, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage.String())
	return &StageError{Stage: stage, Err: err}
}

// Run takes the quiz at examUrl through every stage and returns where finishing the attempt
// redirected to. Any failure aborts the attempt and is returned as a *StageError.
func (f *Flow) Run(ctx context.Context, examUrl string) (Result, error) {
	ctx, span := tracer.Start(ctx, "flow:Run")
	defer span.End()
	span.SetAttributes(attribute.String("exam_url", examUrl))

	exam, err := f.FetchExam(ctx, examUrl)
	if err != nil {
		return Result{}, err
	}
	handle, err := f.StartAttempt(ctx, exam)
	if err != nil {
		return Result{Exam: exam}, err
	}
	form, err := f.ExtractQuestion(ctx, handle)
	if err != nil {
		return Result{Exam: exam, AttemptId: handle.AttemptId}, err
	}
	return f.SubmitAndFinish(ctx, exam, handle, form)
}

// FetchExam loads the quiz page and derives its ExamContext. The context id comes from the `id`
// query parameter, falling back to the `contextInstanceId` in the page config.
func (f *Flow) FetchExam(ctx context.Context, examUrl string) (ExamContext, error) {
	ctx, span := tracer.Start(ctx, "flow:FetchExam")
	defer span.End()

	res, err := f.client.Get(ctx, examUrl)
	if err != nil {
		f.tel.ReportWarning(report_flow_fetch_exam, fmt.Errorf("fetch: %w", err), examUrl)
		return ExamContext{}, fail(span, StageFetchExam, err)
	}
	if !httpclient.IsOk(res) {
		f.tel.ReportWarning(report_flow_fetch_exam, fmt.Errorf("unexpected status %d", res.StatusCode()), examUrl)
	}

	body := res.String()
	contextId := extract.UrlParam(examUrl, "id")
	if contextId == "" {
		contextId = extract.ByPattern(body, extract.ContextInstanceIdPattern)
	}
	if contextId == "" {
		f.tel.ReportBroken(report_flow_fetch_exam, ErrMissingContext, examUrl)
		return ExamContext{}, fail(span, StageFetchExam, ErrMissingContext)
	}

	sesskey := extract.ByPattern(body, extract.SesskeyPattern)
	if sesskey == "" {
		f.tel.ReportWarning(report_flow_fetch_exam, fmt.Errorf("no sesskey found"), examUrl)
	}

	span.SetAttributes(attribute.String("context_id", contextId))
	return ExamContext{ContextId: contextId, Sesskey: sesskey}, nil
}

// StartAttempt asks the platform for a new attempt and reads the attempt id off the url the
// request was redirected to.
func (f *Flow) StartAttempt(ctx context.Context, exam ExamContext) (AttemptHandle, error) {
	ctx, span := tracer.Start(ctx, "flow:StartAttempt")
	defer span.End()

	res, err := f.client.PostForm(ctx, lms.QuizStartAttemptPath, map[string]string{
		"cmid":    exam.ContextId,
		"sesskey": exam.Sesskey,
	})
	if err != nil {
		f.tel.ReportWarning(report_flow_start_attempt, fmt.Errorf("fetch: %w", err), exam.ContextId)
		return AttemptHandle{}, fail(span, StageStartAttempt, err)
	}

	redirectUrl := httpclient.FinalUrl(res)
	attemptId := extract.ByPattern(redirectUrl, extract.AttemptPattern)
	if attemptId == "" {
		f.tel.ReportBroken(
			report_flow_start_attempt,
			ErrAttemptStart,
			exam.ContextId,
			redirectUrl,
			res.StatusCode(),
		)
		return AttemptHandle{}, fail(span, StageStartAttempt, ErrAttemptStart)
	}

	span.SetAttributes(attribute.String("attempt_id", attemptId))
	return AttemptHandle{
		AttemptId:   attemptId,
		Sesskey:     exam.Sesskey,
		RedirectUrl: redirectUrl,
	}, nil
}

// ExtractQuestion loads the first question page of the attempt and parses its form.
func (f *Flow) ExtractQuestion(ctx context.Context, handle AttemptHandle) (extract.QuestionForm, error) {
	ctx, span := tracer.Start(ctx, "flow:ExtractQuestion")
	defer span.End()

	res, err := f.client.Get(ctx, handle.RedirectUrl)
	if err != nil {
		f.tel.ReportWarning(report_flow_extract_question, fmt.Errorf("fetch: %w", err), handle.RedirectUrl)
		return extract.QuestionForm{}, fail(span, StageExtractQuestion, err)
	}

	form, err := extract.QuestionFormFromHtml(res.Body())
	if err != nil {
		f.tel.ReportBroken(report_flow_extract_question, fmt.Errorf("parse: %w", err), handle.RedirectUrl)
		return extract.QuestionForm{}, fail(span, StageExtractQuestion, err)
	}
	if len(form.AnswerOptions) == 0 {
		f.tel.ReportBroken(report_flow_extract_question, ErrNoAnswerOptions, handle.RedirectUrl)
		return extract.QuestionForm{}, fail(span, StageExtractQuestion, ErrNoAnswerOptions)
	}

	if form.Attempt == "" {
		form.Attempt = handle.AttemptId
	}
	if form.Sesskey == "" {
		form.Sesskey = handle.Sesskey
	}

	span.SetAttributes(
		attribute.String("question_id", form.QuestionId),
		attribute.Int("answer_options", len(form.AnswerOptions)),
	)
	return form, nil
}

// BuildSubmission creates the multipart fields answering the question with `answer`. The
// passthrough hidden fields are applied last, so they win over the defaults like the last
// duplicate of a form field does on the server.
func BuildSubmission(form extract.QuestionForm, answer AnswerChoice) map[string]string {
	fields := map[string]string{
		fmt.Sprintf("%s:1_:flagged", form.QuestionId):       "0",
		fmt.Sprintf("%s:1_:sequencecheck", form.QuestionId): form.SequenceCheck,
		answer.Name: answer.Value,
		"next":      SubmitLabel,
		"attempt":   form.Attempt,
		"sesskey":   form.Sesskey,
		"slots":     "1",
	}
	for name, value := range form.HiddenFields {
		fields[name] = value
	}
	return fields
}

// BuildFinish creates the url-encoded fields that finish an attempt.
func BuildFinish(exam ExamContext, attemptId, sesskey string) map[string]string {
	return map[string]string{
		"attempt":       attemptId,
		"finishattempt": "1",
		"timeup":        "0",
		"slots":         "",
		"cmid":          exam.ContextId,
		"sesskey":       sesskey,
	}
}

func requireOk(res *resty.Response) error {
	if httpclient.IsOk(res) {
		return nil
	}
	return &httpclient.StatusError{Url: httpclient.FinalUrl(res), Status: res.StatusCode()}
}

// SubmitAndFinish answers the question with a randomly picked option, visits the attempt summary
// and finishes the attempt.
func (f *Flow) SubmitAndFinish(ctx context.Context, exam ExamContext, handle AttemptHandle, form extract.QuestionForm) (Result, error) {
	ctx, span := tracer.Start(ctx, "flow:SubmitAndFinish")
	defer span.End()

	option := form.AnswerOptions[f.pick(len(form.AnswerOptions))]
	answer := AnswerChoice{Name: option.Name, Value: option.Value}
	result := Result{Exam: exam, AttemptId: form.Attempt, Answer: answer}
	span.SetAttributes(attribute.String("answer", answer.Value))

	res, err := f.client.PostMultipart(ctx, lms.QuizProcessAttempt(exam.ContextId), BuildSubmission(form, answer))
	if err == nil {
		err = requireOk(res)
	}
	if err != nil {
		f.tel.ReportWarning(report_flow_submit_and_finish, fmt.Errorf("submit answer: %w", err), exam.ContextId, form.Attempt)
		return result, fail(span, StageSubmitAndFinish, err)
	}

	res, err = f.client.Get(ctx, lms.QuizSummary(form.Attempt, exam.ContextId))
	if err != nil {
		f.tel.ReportWarning(report_flow_submit_and_finish, fmt.Errorf("summary: %w", err), exam.ContextId, form.Attempt)
		return result, fail(span, StageSubmitAndFinish, err)
	}
	if !httpclient.IsOk(res) {
		f.tel.ReportWarning(report_flow_submit_and_finish, fmt.Errorf("summary: unexpected status %d", res.StatusCode()), exam.ContextId)
	}

	res, err = f.client.PostForm(ctx, lms.QuizProcessAttemptPath, BuildFinish(exam, form.Attempt, form.Sesskey))
	if err == nil {
		err = requireOk(res)
	}
	if err != nil {
		f.tel.ReportWarning(report_flow_submit_and_finish, fmt.Errorf("finish attempt: %w", err), exam.ContextId, form.Attempt)
		return result, fail(span, StageSubmitAndFinish, err)
	}

	result.FinalUrl = httpclient.FinalUrl(res)
	f.tel.ReportDebug("attempt finished", exam.ContextId, form.Attempt, result.FinalUrl)
	return result, nil
}
