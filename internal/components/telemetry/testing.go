package telemetry

import (
	"strings"
	"sync"
)

// Report is a single report captured by TestAPI.
type Report struct {
	Kind   string
	Id     string
	Params []any
}

// TestAPI is an in-memory implementation of API meant for assertions in tests.
type TestAPI struct {
	mutex   sync.Mutex
	reports []Report
	counts  map[string]int64
}

func NewTestAPI() *TestAPI {
	return &TestAPI{counts: map[string]int64{}}
}

func (t *TestAPI) record(kind, id string, params []any) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.reports = append(t.reports, Report{Kind: kind, Id: id, Params: params})
}

func (t *TestAPI) ReportBroken(id string, params ...any) {
	t.record("broken", id, params)
}

func (t *TestAPI) ReportWarning(id string, params ...any) {
	t.record("warning", id, params)
}

func (t *TestAPI) ReportDebug(msg string, params ...any) {
	t.record("debug", msg, params)
}

func (t *TestAPI) ReportCount(id string, count int64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.counts[id] = count
}

// Reports returns every report of the given kind ("broken", "warning", "debug") whose id contains
// the given substring.
func (t *TestAPI) Reports(kind, idContains string) []Report {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var out []Report
	for _, r := range t.reports {
		if r.Kind == kind && strings.Contains(r.Id, idContains) {
			out = append(out, r)
		}
	}
	return out
}

// Count returns the last count reported under an id containing the given substring.
func (t *TestAPI) Count(idContains string) (int64, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	for id, n := range t.counts {
		if strings.Contains(id, idContains) {
			return n, true
		}
	}
	return 0, false
}
