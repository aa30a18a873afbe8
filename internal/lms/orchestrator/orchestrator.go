// Package orchestrator drives a course to completion: it scans the course page, visits pending
// resources, runs an attempt for every pending quiz and repeats until a scan finds nothing left.
package orchestrator

import (
	"context"
	"coursepilot/internal/components/assert"
	"coursepilot/internal/components/chrono"
	"coursepilot/internal/components/telemetry"
	"coursepilot/internal/lms/extract"
	"coursepilot/internal/lms/quiz"
	"coursepilot/internal/notify"
	"errors"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("coursepilot.lms.orchestrator")
var meter = otel.Meter("coursepilot.lms.orchestrator")

var (
	ErrAlreadyRunning    = errors.New("a run is already in progress")
	ErrCourseUnavailable = errors.New("course page could not be loaded")
	ErrNoProgress        = errors.New("activities remain after the maximum number of passes")
)

const (
	DefaultMaxPasses = 10
	DefaultQuizPause = 3 * time.Second
)

type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Client is the subset of the platform http client the orchestrator needs.
type Client interface {
	Get(ctx context.Context, target string) (*resty.Response, error)
	MarkComplete(ctx context.Context, pageId string) error
}

// QuizRunner takes a single quiz through an attempt.
type QuizRunner interface {
	Run(ctx context.Context, examUrl string) (quiz.Result, error)
}

type Options struct {
	// CourseUrl is the course view page, absolute or relative to the client's base url.
	CourseUrl    string
	TriggerWords []string
	// MaxPasses of 0 means DefaultMaxPasses.
	MaxPasses int
	// QuizPause is the wait between consecutive quizzes, 0 means DefaultQuizPause and a negative
	// value disables it.
	QuizPause time.Duration
	// ResourceConcurrency of 0 visits every pending resource at once.
	ResourceConcurrency int

	Client    Client
	Quiz      QuizRunner
	Notify    notify.Sink
	Time      chrono.TimeAPI
	Telemetry telemetry.API
}

// PassResult is what a single pass found and did.
type PassResult struct {
	Pass              int
	Resources         int
	Quizzes           int
	ResourcesFailed   int
	QuizzesFailed     int
	HasRemaining      bool
	AlreadyComplete   int
	UnidentifiedLinks int
}

// Idle reports whether the pass found nothing to do, which ends a run.
func (p PassResult) Idle() bool {
	return p.Resources == 0 && p.Quizzes == 0 && !p.HasRemaining
}

// RunResult summarizes every pass of a run.
type RunResult struct {
	Passes []PassResult
}

func (r RunResult) totals() (resources, quizzes, resourcesFailed, quizzesFailed int) {
	for _, p := range r.Passes {
		resources += p.Resources - p.ResourcesFailed
		quizzes += p.Quizzes - p.QuizzesFailed
		resourcesFailed += p.ResourcesFailed
		quizzesFailed += p.QuizzesFailed
	}
	return
}

func (r RunResult) CompletedResources() int {
	n, _, _, _ := r.totals()
	return n
}

func (r RunResult) CompletedQuizzes() int {
	_, n, _, _ := r.totals()
	return n
}

func (r RunResult) FailedQuizzes() int {
	_, _, _, n := r.totals()
	return n
}

func (r RunResult) FailedResources() int {
	_, _, n, _ := r.totals()
	return n
}

type counters struct {
	resources      metric.Int64Counter
	quizzes        metric.Int64Counter
	quizzesFailed  metric.Int64Counter
	passesExecuted metric.Int64Counter
}

func newCounters() counters {
	// instrument creation only fails on invalid names, a no-op instrument is returned alongside
	resources, _ := meter.Int64Counter(
		"coursepilot.resources.completed",
		metric.WithDescription("resources marked complete"),
	)
	quizzes, _ := meter.Int64Counter(
		"coursepilot.quizzes.completed",
		metric.WithDescription("quiz attempts finished"),
	)
	quizzesFailed, _ := meter.Int64Counter(
		"coursepilot.quizzes.failed",
		metric.WithDescription("quiz attempts aborted"),
	)
	passes, _ := meter.Int64Counter(
		"coursepilot.passes",
		metric.WithDescription("orchestration passes executed"),
	)
	return counters{
		resources:      resources,
		quizzes:        quizzes,
		quizzesFailed:  quizzesFailed,
		passesExecuted: passes,
	}
}

type Orchestrator struct {
	courseUrl    string
	triggerWords []string
	maxPasses    int
	quizPause    time.Duration
	concurrency  int

	client   Client
	quiz     QuizRunner
	notify   notify.Sink
	time     chrono.TimeAPI
	tel      telemetry.API
	counters counters

	mutex sync.Mutex
	state State
}

func New(opts Options) *Orchestrator {
	assert.NotEmptyStr(opts.CourseUrl)
	assert.NotNil(opts.Client)
	assert.NotNil(opts.Quiz)
	assert.NotNil(opts.Notify)
	assert.NotNil(opts.Time)
	assert.NotNil(opts.Telemetry)
	assert.NonNegative(opts.ResourceConcurrency)

	triggerWords := opts.TriggerWords
	if len(triggerWords) == 0 {
		triggerWords = extract.DefaultTriggerWords
	}
	maxPasses := opts.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	quizPause := opts.QuizPause
	switch {
	case quizPause == 0:
		quizPause = DefaultQuizPause
	case quizPause < 0:
		quizPause = 0
	}

	return &Orchestrator{
		courseUrl:    opts.CourseUrl,
		triggerWords: triggerWords,
		maxPasses:    maxPasses,
		quizPause:    quizPause,
		concurrency:  opts.ResourceConcurrency,
		client:       opts.Client,
		quiz:         opts.Quiz,
		notify:       opts.Notify,
		time:         opts.Time,
		tel:          telemetry.NewScopedAPI("orchestrator", opts.Telemetry),
		counters:     newCounters(),
	}
}

func (o *Orchestrator) State() State {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.state
}

func (o *Orchestrator) acquire() bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.state == StateRunning {
		return false
	}
	o.state = StateRunning
	return true
}

func (o *Orchestrator) release() {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.state = StateIdle
}
