package commands

import (
	"context"
	"coursepilot/internal/components/chrono"
	"coursepilot/internal/components/telemetry"
	"coursepilot/internal/config"
	"coursepilot/internal/lms"
	"coursepilot/internal/lms/httpclient"
	"coursepilot/internal/lms/location"
	"coursepilot/internal/lms/orchestrator"
	"coursepilot/internal/lms/quiz"
	"coursepilot/internal/notify"
	"fmt"
	"time"

	"github.com/mazen160/go-random"
)

// loadConfig reads the config file and applies the flags given on the command line.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("read config: %w", err)
	}
	if courseUrl != "" {
		cfg.CourseUrl = courseUrl
	}
	if cookie != "" {
		cfg.Cookies = cookie
	}
	if maxPasses > 0 {
		cfg.MaxPasses = maxPasses
	}
	if dumpDir != "" {
		cfg.DumpDir = dumpDir
	}
	return cfg, nil
}

// env is everything a command needs to talk to the platform during one run.
type env struct {
	runId        string
	config       config.Config
	tel          telemetry.API
	client       *httpclient.Client
	flow         *quiz.Flow
	sink         notify.Sink
	orchestrator *orchestrator.Orchestrator
}

func newRunId() string {
	id, err := random.String(8)
	if err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return id
}

// newEnv wires the components of a run. The orchestrator is only created when a course url is
// configured and it passes the location check.
func newEnv(cfg config.Config, base telemetry.API, clock chrono.TimeAPI) (*env, error) {
	runId := newRunId()
	tel := telemetry.WithRun(runId, base)

	s, err := cfg.Session()
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	if s.Empty() {
		tel.ReportWarning("commands.session", fmt.Errorf("no cookies configured, requests are anonymous"))
	}

	client, err := httpclient.NewClient(httpclient.Options{
		BaseUrl:           cfg.BaseUrl,
		Session:           s,
		MaxRetries:        cfg.MaxRetries,
		Timeout:           cfg.Timeout(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		CloudflareBypass:  cfg.CloudflareBypass,
		UserAgent:         cfg.UserAgent,
		DumpDir:           cfg.DumpDir,
		Time:              clock,
		Telemetry:         tel,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	sink := notify.MultiSink{notify.LogSink{}}
	if cfg.Smtp.Enabled() {
		sink = append(sink, notify.NewEmailSink(cfg.Smtp, tel))
	}

	e := &env{
		runId:  runId,
		config: cfg,
		tel:    tel,
		client: client,
		flow:   quiz.NewFlow(client, tel, nil),
		sink:   sink,
	}
	if cfg.CourseUrl == "" {
		return e, nil
	}

	courseId, err := location.Check(cfg.CourseUrl, client.BaseUrl)
	if err != nil {
		return nil, err
	}
	e.orchestrator = orchestrator.New(orchestrator.Options{
		CourseUrl:           lms.CourseView(courseId),
		TriggerWords:        cfg.TriggerWords,
		MaxPasses:           cfg.MaxPasses,
		QuizPause:           cfg.QuizPause(),
		ResourceConcurrency: cfg.ResourceConcurrency,
		Client:              client,
		Quiz:                e.flow,
		Notify:              sink,
		Time:                clock,
		Telemetry:           tel,
	})
	return e, nil
}

// setupCourse loads the config and wires a run that works on a course.
func setupCourse() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return newEnv(cfg, telemetry.SlogAPI{}, chrono.NewStandardTime())
}

func startPerfStats(ctx context.Context, cfg config.Config) {
	if cfg.PerfStats {
		telemetry.InstrumentPerfStats(ctx, time.Second*5)
	}
}
