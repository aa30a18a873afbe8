package orchestrator

import (
	"context"
	"coursepilot/internal/lms/extract"
	"coursepilot/internal/lms/httpclient"
	"coursepilot/internal/notify"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

const (
	report_orchestrator_scan       = "orchestrator.scan"
	report_orchestrator_resource   = "orchestrator.complete-resource"
	report_orchestrator_quiz       = "orchestrator.run-quiz"
	report_orchestrator_run        = "orchestrator.run"
	report_orchestrator_resources  = "orchestrator.resources-completed"
	report_orchestrator_quizzes    = "orchestrator.quizzes-completed"
	report_orchestrator_quiz_fails = "orchestrator.quizzes-failed"
)

// Scan loads the course page and reads its activities.
func (o *Orchestrator) Scan(ctx context.Context) (extract.CourseScan, error) {
	ctx, span := tracer.Start(ctx, "orchestrator:Scan")
	defer span.End()

	res, err := o.client.Get(ctx, o.courseUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch course page")
		o.tel.ReportWarning(report_orchestrator_scan, err, o.courseUrl)
		return extract.CourseScan{}, fmt.Errorf("%w: %w", ErrCourseUnavailable, err)
	}
	if !httpclient.IsOk(res) {
		span.SetStatus(codes.Error, res.Status())
		o.tel.ReportWarning(report_orchestrator_scan, fmt.Errorf("unexpected status %d", res.StatusCode()), o.courseUrl)
		return extract.CourseScan{}, fmt.Errorf("%w: status %d", ErrCourseUnavailable, res.StatusCode())
	}

	pageUrl, err := url.Parse(httpclient.FinalUrl(res))
	if err != nil {
		pageUrl = nil
	}
	scan, err := extract.CourseScanFromHtml(res.Body(), pageUrl, o.triggerWords)
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse course page")
		o.tel.ReportBroken(report_orchestrator_scan, fmt.Errorf("parse: %w", err), o.courseUrl)
		return extract.CourseScan{}, fmt.Errorf("%w: %w", ErrCourseUnavailable, err)
	}

	span.SetAttributes(
		attribute.Int("activities", len(scan.Activities)),
		attribute.Int("unlinked", scan.Unlinked),
	)
	return scan, nil
}

// Run executes passes until one finds nothing left to do. Only one run may be in progress at a
// time, a concurrent call returns ErrAlreadyRunning without doing anything. A run that still has
// work left after the maximum number of passes returns ErrNoProgress.
func (o *Orchestrator) Run(ctx context.Context) (RunResult, error) {
	if !o.acquire() {
		o.notify.Notify(ctx, "Already running", "a run is already in progress, wait for it to finish", notify.SeverityInfo)
		return RunResult{}, ErrAlreadyRunning
	}
	defer o.release()

	ctx, span := tracer.Start(ctx, "orchestrator:Run")
	defer span.End()

	o.notify.Notify(ctx, "Starting", "looking for pending activities", notify.SeverityInfo)

	var result RunResult
	for pass := 1; pass <= o.maxPasses; pass++ {
		passResult, err := o.pass(ctx, pass)
		result.Passes = append(result.Passes, passResult)
		o.reportTotals(result)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "pass failed")
			switch {
			case ctx.Err() != nil:
				o.notify.Notify(ctx, "Stopped", "the run was cancelled", notify.SeverityError)
			case errors.Is(err, ErrCourseUnavailable):
				o.notify.Notify(ctx, "Course unavailable", "could not load the course page", notify.SeverityError)
			default:
				o.tel.ReportBroken(report_orchestrator_run, err, pass)
				o.notify.Notify(ctx, "Error", "an unexpected error interrupted the run", notify.SeverityError)
			}
			return result, err
		}

		if passResult.Idle() {
			if pass == 1 {
				o.notify.Notify(ctx, "Nothing pending", "every activity is already complete", notify.SeveritySuccess)
			} else {
				o.notify.Notify(ctx, "Finished", summary(result), notify.SeveritySuccess)
			}
			span.SetAttributes(attribute.Int("passes", pass))
			return result, nil
		}

		if passResult.HasRemaining {
			o.notify.Notify(ctx, "Restarting", "some activities could not be classified, scanning again", notify.SeverityInfo)
		} else {
			o.notify.Notify(ctx, "Pass complete", fmt.Sprintf("pass %d done, scanning again", pass), notify.SeverityInfo)
		}
	}

	span.SetStatus(codes.Error, "no progress")
	o.tel.ReportWarning(report_orchestrator_run, ErrNoProgress, o.maxPasses)
	o.notify.Notify(
		ctx,
		"No progress",
		fmt.Sprintf("activities remain after %d passes", o.maxPasses),
		notify.SeverityError,
	)
	return result, ErrNoProgress
}

func summary(result RunResult) string {
	return fmt.Sprintf(
		"%d resources and %d quizzes completed, %d quiz attempts failed",
		result.CompletedResources(),
		result.CompletedQuizzes(),
		result.FailedQuizzes(),
	)
}

func (o *Orchestrator) reportTotals(result RunResult) {
	o.tel.ReportCount(report_orchestrator_resources, int64(result.CompletedResources()))
	o.tel.ReportCount(report_orchestrator_quizzes, int64(result.CompletedQuizzes()))
	o.tel.ReportCount(report_orchestrator_quiz_fails, int64(result.FailedQuizzes()))
}

func (o *Orchestrator) pass(ctx context.Context, number int) (PassResult, error) {
	ctx, span := tracer.Start(ctx, "orchestrator:pass")
	defer span.End()
	span.SetAttributes(attribute.Int("pass", number))
	o.counters.passesExecuted.Add(ctx, 1)

	result := PassResult{Pass: number}

	scan, err := o.Scan(ctx)
	if err != nil {
		return result, err
	}
	resources, quizzes := scan.Pending()
	result.Resources = len(resources)
	result.Quizzes = len(quizzes)
	result.HasRemaining = scan.HasRemaining()
	result.UnidentifiedLinks = scan.Unidentified
	result.AlreadyComplete = len(scan.Activities) - len(resources) - len(quizzes)

	o.tel.ReportDebug(
		"pass scanned",
		number,
		len(resources),
		len(quizzes),
		scan.Unlinked,
	)

	if len(resources) > 0 {
		result.ResourcesFailed, err = o.completeResources(ctx, resources)
		if err != nil {
			return result, err
		}
	}
	if len(quizzes) > 0 {
		result.QuizzesFailed, err = o.runQuizzes(ctx, quizzes)
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

// completeResources visits every resource concurrently. A failed visit is reported and counted,
// only cancellation aborts the batch.
func (o *Orchestrator) completeResources(ctx context.Context, resources []extract.ActivityRef) (int, error) {
	ctx, span := tracer.Start(ctx, "orchestrator:completeResources")
	defer span.End()

	o.notify.Notify(
		ctx,
		"Completing resources",
		fmt.Sprintf("visiting %d resources", len(resources)),
		notify.SeverityInfo,
	)

	var failed atomic.Int64
	group := errgroup.Group{}
	if o.concurrency > 0 {
		group.SetLimit(o.concurrency)
	}
	for _, resource := range resources {
		resource := resource
		group.Go(func() error {
			err := o.client.MarkComplete(ctx, resource.Id)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed.Add(1)
				o.tel.ReportWarning(report_orchestrator_resource, err, resource.Id, resource.DisplayName)
				return nil
			}
			o.counters.resources.Add(ctx, 1)
			return nil
		})
	}
	err := group.Wait()
	if err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return int(failed.Load()), err
	}

	completed := len(resources) - int(failed.Load())
	o.notify.Notify(
		ctx,
		"Resources completed",
		fmt.Sprintf("%d/%d resources completed", completed, len(resources)),
		notify.SeverityInfo,
	)
	return int(failed.Load()), nil
}

// runQuizzes attempts every quiz one after the other, pausing between consecutive quizzes. A
// failed attempt is reported and the next quiz proceeds, it stays pending for the next pass.
func (o *Orchestrator) runQuizzes(ctx context.Context, quizzes []extract.ActivityRef) (int, error) {
	ctx, span := tracer.Start(ctx, "orchestrator:runQuizzes")
	defer span.End()

	o.notify.Notify(
		ctx,
		"Answering quizzes",
		fmt.Sprintf("%d quizzes pending", len(quizzes)),
		notify.SeverityInfo,
	)

	failed := 0
	for i, q := range quizzes {
		progress := fmt.Sprintf("(%d/%d) %s", i+1, len(quizzes), q.DisplayName)
		o.notify.Notify(ctx, "Answering quiz", progress, notify.SeverityInfo)

		_, err := o.quiz.Run(ctx, q.Href.String())
		if err != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			failed++
			o.counters.quizzesFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("quiz_id", q.Id)))
			o.tel.ReportWarning(report_orchestrator_quiz, err, q.Id, q.DisplayName)
			o.notify.Notify(ctx, "Quiz failed", fmt.Sprintf("%s: %s", progress, err.Error()), notify.SeverityError)
		} else {
			o.counters.quizzes.Add(ctx, 1)
		}

		if i < len(quizzes)-1 && o.quizPause > 0 {
			err = o.time.Sleep(ctx, o.quizPause)
			if err != nil {
				return failed, err
			}
		}
	}

	o.notify.Notify(
		ctx,
		"Quizzes done",
		fmt.Sprintf("%d/%d quizzes submitted", len(quizzes)-failed, len(quizzes)),
		notify.SeverityInfo,
	)
	return failed, nil
}
