// Package lmstest serves a small in-memory rendition of the learning platform for tests.
package lmstest

import (
	"coursepilot/internal/lms"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Activity is one entry of the served course page.
type Activity struct {
	Id       string
	Name     string
	Quiz     bool
	Complete bool

	// Options are the answer values of the quiz question, defaults to 0 through 3.
	Options []string
	// RefuseStart makes starting an attempt redirect back to the quiz page.
	RefuseStart bool
	// NoOptions renders a question without selectable answers.
	NoOptions bool
	// FailFinish makes finishing an attempt answer 500.
	FailFinish bool
}

type attempt struct {
	id       string
	activity *Activity
}

type Platform struct {
	Server   *httptest.Server
	CourseId string
	Sesskey  string

	mu           sync.Mutex
	activities   []*Activity
	unlinked     int
	courseStatus int
	nextAttempt  int
	attempts     map[string]attempt
	submissions  []map[string]string
	finishes     []map[string]string
	hits         map[string]int
}

func NewPlatform(t testing.TB, activities ...Activity) *Platform {
	p := &Platform{
		CourseId:    "77",
		Sesskey:     "sk3y",
		nextAttempt: 100,
		attempts:    map[string]attempt{},
		hits:        map[string]int{},
	}
	for _, a := range activities {
		a := a
		if len(a.Options) == 0 {
			a.Options = []string{"0", "1", "2", "3"}
		}
		p.activities = append(p.activities, &a)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(lms.CourseViewPath, p.courseView)
	mux.HandleFunc(lms.ResourceViewPath, p.resourceView)
	mux.HandleFunc("/mod/quiz/view.php", p.quizView)
	mux.HandleFunc(lms.QuizStartAttemptPath, p.startAttempt)
	mux.HandleFunc("/mod/quiz/attempt.php", p.attemptPage)
	mux.HandleFunc(lms.QuizProcessAttemptPath, p.processAttempt)
	mux.HandleFunc(lms.QuizSummaryPath, p.plain)
	mux.HandleFunc("/mod/quiz/review.php", p.plain)

	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.hits[r.URL.Path]++
		p.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(p.Server.Close)
	return p
}

func (p *Platform) Url() string {
	return p.Server.URL
}

// CourseUrl is the absolute url of the served course page.
func (p *Platform) CourseUrl() string {
	return p.Server.URL + lms.CourseView(p.CourseId)
}

// QuizUrl is the absolute url of a quiz page.
func (p *Platform) QuizUrl(id string) string {
	return p.Server.URL + "/mod/quiz/view.php?id=" + id
}

// SetCourseStatus makes the course page answer with status, 0 restores normal pages.
func (p *Platform) SetCourseStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.courseStatus = status
}

// SetUnlinked renders n incomplete activities without a link.
func (p *Platform) SetUnlinked(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlinked = n
}

// Activity returns the current state of an activity.
func (p *Platform) Activity(id string) (Activity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.activities {
		if a.Id == id {
			return *a, true
		}
	}
	return Activity{}, false
}

// Submissions are the answer forms posted so far.
func (p *Platform) Submissions() []map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]string(nil), p.submissions...)
}

// Finishes are the finish forms posted so far.
func (p *Platform) Finishes() []map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]string(nil), p.finishes...)
}

// Hits counts the requests made to a path.
func (p *Platform) Hits(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

func (p *Platform) find(id string) *Activity {
	for _, a := range p.activities {
		if a.Id == id {
			return a
		}
	}
	return nil
}

func (p *Platform) courseView(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.courseStatus != 0 {
		w.WriteHeader(p.courseStatus)
		return
	}
	if r.URL.Query().Get("id") != p.CourseId {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var b strings.Builder
	b.WriteString(`<html><body><ul class="topics">`)
	for _, a := range p.activities {
		module := "resource"
		if a.Quiz {
			module = "quiz"
		}
		button := "btn btn-outline-secondary"
		if a.Complete {
			button = "btn btn-success"
		}
		fmt.Fprintf(
			&b,
			`<li class="activity"><a class="aalink" href="/mod/%s/view.php?id=%s"><span class="instancename">%s</span></a>`+
				`<div class="completion-dropdown"><button class="%s">status</button></div></li>`,
			module, a.Id, html.EscapeString(a.Name), button,
		)
	}
	for i := 0; i < p.unlinked; i++ {
		b.WriteString(`<li class="activity"><div class="label">Aviso</div>` +
			`<div class="completion-dropdown"><button class="btn btn-outline-secondary">status</button></div></li>`)
	}
	b.WriteString(`</ul></body></html>`)
	writeHtml(w, b.String())
}

func (p *Platform) resourceView(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a := p.find(r.URL.Query().Get("id"))
	if a == nil || a.Quiz {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	a.Complete = true
	writeHtml(w, "<html><body>resource</body></html>")
}

func (p *Platform) quizView(w http.ResponseWriter, r *http.Request) {
	// cmid renders the page config without an id in the url
	id := r.URL.Query().Get("id")
	if id == "" {
		id = r.URL.Query().Get("cmid")
	}
	cfg := fmt.Sprintf(`{"sesskey":"%s"}`, p.Sesskey)
	if id != "" {
		cfg = fmt.Sprintf(`{"sesskey":"%s","contextInstanceId":%s}`, p.Sesskey, id)
	}
	writeHtml(w, fmt.Sprintf("<html><head><script>M.cfg = %s;</script></head><body>quiz</body></html>", cfg))
}

func (p *Platform) startAttempt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.ParseForm() != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	cmid := r.PostForm.Get("cmid")

	p.mu.Lock()
	a := p.find(cmid)
	if a == nil || !a.Quiz || a.RefuseStart || r.PostForm.Get("sesskey") != p.Sesskey {
		p.mu.Unlock()
		http.Redirect(w, r, "/mod/quiz/view.php?id="+cmid, http.StatusSeeOther)
		return
	}
	id := strconv.Itoa(p.nextAttempt)
	p.nextAttempt++
	p.attempts[id] = attempt{id: id, activity: a}
	p.mu.Unlock()

	http.Redirect(w, r, fmt.Sprintf("/mod/quiz/attempt.php?attempt=%s&cmid=%s", id, cmid), http.StatusSeeOther)
}

func (p *Platform) attemptPage(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	at, ok := p.attempts[r.URL.Query().Get("attempt")]
	p.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	qid := "q" + at.id
	var b strings.Builder
	b.WriteString(`<html><body><form id="responseform">`)
	fmt.Fprintf(&b, `<input type="hidden" name="attempt" value="%s">`, at.id)
	fmt.Fprintf(&b, `<input type="hidden" name="sesskey" value="%s">`, p.Sesskey)
	b.WriteString(`<input type="hidden" name="thispage" value="0">`)
	b.WriteString(`<input type="hidden" name="nextpage" value="-1">`)
	b.WriteString(`<input type="hidden" name="timeup" value="0">`)
	b.WriteString(`<input type="hidden" name="slots" value="1">`)
	fmt.Fprintf(&b, `<input type="hidden" name="%s:1_:sequencecheck" value="1">`, qid)
	if !at.activity.NoOptions {
		fmt.Fprintf(&b, `<input type="radio" name="%s:1_answer" value="-1">`, qid)
		for _, option := range at.activity.Options {
			fmt.Fprintf(&b, `<input type="radio" name="%s:1_answer" value="%s">`, qid, option)
		}
	}
	b.WriteString(`</form></body></html>`)
	writeHtml(w, b.String())
}

func firstValues(values map[string][]string) map[string]string {
	out := map[string]string{}
	for name, v := range values {
		if len(v) > 0 {
			out[name] = v[0]
		}
	}
	return out
}

func (p *Platform) processAttempt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fields := firstValues(r.MultipartForm.Value)
		p.mu.Lock()
		p.submissions = append(p.submissions, fields)
		p.mu.Unlock()
		http.Redirect(
			w, r,
			fmt.Sprintf("%s?attempt=%s&cmid=%s", lms.QuizSummaryPath, fields["attempt"], r.URL.Query().Get("cmid")),
			http.StatusSeeOther,
		)
		return
	}

	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	fields := firstValues(r.PostForm)

	p.mu.Lock()
	p.finishes = append(p.finishes, fields)
	at, ok := p.attempts[fields["attempt"]]
	if !ok || fields["finishattempt"] != "1" {
		p.mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if at.activity.FailFinish {
		p.mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	at.activity.Complete = true
	p.mu.Unlock()

	http.Redirect(w, r, "/mod/quiz/review.php?attempt="+at.id, http.StatusSeeOther)
}

func (p *Platform) plain(w http.ResponseWriter, r *http.Request) {
	writeHtml(w, "<html><body>ok</body></html>")
}

func writeHtml(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}
