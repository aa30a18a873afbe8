package quiz

import (
	"context"
	"coursepilot/internal/components/chrono"
	"coursepilot/internal/components/telemetry"
	"coursepilot/internal/lms/extract"
	"coursepilot/internal/lms/httpclient"
	"coursepilot/internal/lms/lmstest"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestFlow(t *testing.T, platform *lmstest.Platform, pick Picker) (*Flow, *telemetry.TestAPI) {
	tel := telemetry.NewTestAPI()
	client, err := httpclient.NewClient(httpclient.Options{
		BaseUrl:   platform.Url(),
		Time:      chrono.NewFakeTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Telemetry: tel,
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewFlow(client, tel, pick), tel
}

func fixed(index int) Picker {
	return func(int) int {
		return index
	}
}

func TestRunSubmitsAndFinishes(t *testing.T) {
	platform := lmstest.NewPlatform(t, lmstest.Activity{
		Id:      "42",
		Name:    "Responda o questionário",
		Quiz:    true,
		Options: []string{"0", "1", "2"},
	})
	flow, _ := newTestFlow(t, platform, fixed(1))

	result, err := flow.Run(context.Background(), platform.QuizUrl("42"))
	require.NoError(t, err)

	require.Equal(t, ExamContext{ContextId: "42", Sesskey: platform.Sesskey}, result.Exam)
	require.Equal(t, "100", result.AttemptId)
	require.Equal(t, AnswerChoice{Name: "q100:1_answer", Value: "1"}, result.Answer)
	require.True(t, strings.HasSuffix(result.FinalUrl, "/mod/quiz/review.php?attempt=100"), result.FinalUrl)

	submissions := platform.Submissions()
	require.Len(t, submissions, 1)
	expected := map[string]string{
		"q100:1_:flagged":       "0",
		"q100:1_:sequencecheck": "1",
		"q100:1_answer":         "1",
		"next":                  SubmitLabel,
		"attempt":               "100",
		"sesskey":               platform.Sesskey,
		"slots":                 "1",
		"thispage":              "0",
		"nextpage":              "-1",
		"timeup":                "0",
	}
	if diff := cmp.Diff(expected, submissions[0]); diff != "" {
		t.Fatal(diff)
	}

	finishes := platform.Finishes()
	require.Len(t, finishes, 1)
	if diff := cmp.Diff(map[string]string{
		"attempt":       "100",
		"finishattempt": "1",
		"timeup":        "0",
		"slots":         "",
		"cmid":          "42",
		"sesskey":       platform.Sesskey,
	}, finishes[0]); diff != "" {
		t.Fatal(diff)
	}

	activity, _ := platform.Activity("42")
	require.True(t, activity.Complete)
	// once following the answer redirect and once explicitly
	require.Equal(t, 2, platform.Hits("/mod/quiz/summary.php"))
}

func TestFetchExamMissingContext(t *testing.T) {
	platform := lmstest.NewPlatform(t)
	flow, _ := newTestFlow(t, platform, nil)

	// the page carries no contextInstanceId when the url has no id
	_, err := flow.FetchExam(context.Background(), "/mod/quiz/view.php")
	require.ErrorIs(t, err, ErrMissingContext)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageFetchExam, stageErr.Stage)
}

func TestFetchExamFallsBackToPageContext(t *testing.T) {
	platform := lmstest.NewPlatform(t)
	flow, _ := newTestFlow(t, platform, nil)

	exam, err := flow.FetchExam(context.Background(), "/mod/quiz/view.php?cmid=9")
	require.NoError(t, err)
	require.Equal(t, ExamContext{ContextId: "9", Sesskey: platform.Sesskey}, exam)
}

func TestRunStageFailures(t *testing.T) {
	table := []struct {
		name     string
		activity lmstest.Activity
		stage    Stage
		err      error
	}{
		{
			name:     "attempt refused",
			activity: lmstest.Activity{Id: "5", Name: "Pause", Quiz: true, RefuseStart: true},
			stage:    StageStartAttempt,
			err:      ErrAttemptStart,
		},
		{
			name:     "no answer options",
			activity: lmstest.Activity{Id: "5", Name: "Pause", Quiz: true, NoOptions: true},
			stage:    StageExtractQuestion,
			err:      ErrNoAnswerOptions,
		},
	}

	for _, test := range table {
		t.Run(test.name, func(t *testing.T) {
			platform := lmstest.NewPlatform(t, test.activity)
			flow, tel := newTestFlow(t, platform, nil)

			_, err := flow.Run(context.Background(), platform.QuizUrl("5"))
			require.ErrorIs(t, err, test.err)

			var stageErr *StageError
			require.True(t, errors.As(err, &stageErr))
			require.Equal(t, test.stage, stageErr.Stage)

			require.NotEmpty(t, tel.Reports("broken", test.stage.String()))
			require.Empty(t, platform.Submissions())
			activity, _ := platform.Activity("5")
			require.False(t, activity.Complete)
		})
	}
}

func TestRunFinishRejected(t *testing.T) {
	platform := lmstest.NewPlatform(t, lmstest.Activity{Id: "8", Name: "Responda", Quiz: true, FailFinish: true})
	flow, _ := newTestFlow(t, platform, nil)

	_, err := flow.Run(context.Background(), platform.QuizUrl("8"))
	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, 500, statusErr.Status)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageSubmitAndFinish, stageErr.Stage)
	require.Len(t, platform.Submissions(), 1)
}

func TestRunNetworkFailure(t *testing.T) {
	platform := lmstest.NewPlatform(t)
	flow, _ := newTestFlow(t, platform, nil)
	platform.Server.Close()

	_, err := flow.Run(context.Background(), platform.QuizUrl("1"))
	require.True(t, httpclient.IsNetworkError(err))

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageFetchExam, stageErr.Stage)
}

func TestBuildSubmissionHiddenFieldsWin(t *testing.T) {
	form := extract.QuestionForm{
		QuestionId:    "q7",
		SequenceCheck: "2",
		Attempt:       "11",
		Sesskey:       "s",
		HiddenFields:  map[string]string{"slots": "3"},
	}
	fields := BuildSubmission(form, AnswerChoice{Name: "q7:1_answer", Value: "0"})
	require.Equal(t, "3", fields["slots"])
	require.Equal(t, "2", fields["q7:1_:sequencecheck"])
	require.Equal(t, "0", fields["q7:1_answer"])
}

func TestUniformPicker(t *testing.T) {
	const options = 4
	const samples = 40000

	pick := UniformPicker(rand.New(rand.NewPCG(1, 2)))
	counts := make([]int, options)
	for i := 0; i < samples; i++ {
		index := pick(options)
		require.GreaterOrEqual(t, index, 0)
		require.Less(t, index, options)
		counts[index]++
	}

	expected := float64(samples) / options
	for i, count := range counts {
		deviation := math.Abs(float64(count)-expected) / expected
		require.Less(t, deviation, 0.05, "option %d was picked %d times", i, count)
	}
}

func TestUniformPickerGlobal(t *testing.T) {
	pick := UniformPicker(nil)
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		seen[pick(2)] = true
	}
	require.Len(t, seen, 2)
}
