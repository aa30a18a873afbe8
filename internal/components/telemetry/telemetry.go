package telemetry

import (
	"fmt"
)

// API is an abstraction over logging/metrics.
// This allows for assertions and tests for working logging/metrics to exist.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that has broken in a way that should be addressed.
	//
	// The `id` should identify the **component** that broke (ex. `flow.start-attempt`), not the specific
	// line that failed. If more detail is needed, wrap the error with fmt.Errorf or add a param.
	//
	// Formatting rules:
	// 1) all lowercase
	// 2) use underscores for large components
	// 3) use dashes for methods part of a larger component
	ReportBroken(id string, params ...any)

	// ReportWarning reports a scenario that does not necessarily indicate brokenness, but may be subject to investigation
	//
	// For what value to provide as `id` refer to ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug reports some debug information that will be ignored unless verbose output is enabled.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the current count of a specific event at the current time, these counts should
	// not be summed but interpreted as points of data over time.
	//
	// For what value to provide as `id` refer to ReportBroken.
	ReportCount(id string, count int64)
}

// ScopedAPI is a telemetry API that attaches a namespace for a given API, kind of like creating a
// "sub" logger using things like log.New(), in which you can define the prefix for the logs.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a given namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}

// WithRun returns an API that tags every report with the given run id, so that all the reports
// produced by one orchestration run can be grouped together.
func WithRun(runId string, inner API) API {
	return runAPI{runId: runId, inner: inner}
}

type runAPI struct {
	runId string
	inner API
}

func (r runAPI) tag(params []any) []any {
	return append([]any{fmt.Sprintf("run=%s", r.runId)}, params...)
}

func (r runAPI) ReportBroken(id string, params ...any) {
	r.inner.ReportBroken(id, r.tag(params)...)
}

func (r runAPI) ReportWarning(id string, params ...any) {
	r.inner.ReportWarning(id, r.tag(params)...)
}

func (r runAPI) ReportDebug(msg string, params ...any) {
	r.inner.ReportDebug(msg, r.tag(params)...)
}

func (r runAPI) ReportCount(id string, count int64) {
	r.inner.ReportCount(id, count)
}
