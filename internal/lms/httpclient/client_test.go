package httpclient

import (
	"context"
	"coursepilot/internal/components/chrono"
	"coursepilot/internal/components/telemetry"
	"coursepilot/internal/lms/session"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseUrl string, opts Options) (*Client, *chrono.FakeTime) {
	fake := chrono.NewFakeTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	opts.BaseUrl = baseUrl
	opts.Time = fake
	opts.Telemetry = telemetry.NewTestAPI()
	client, err := NewClient(opts)
	if err != nil {
		t.Fatal(err)
	}
	return client, fake
}

func TestBackoff(t *testing.T) {
	table := []struct {
		maxRetries  int
		retriesLeft int
		expected    time.Duration
	}{
		{maxRetries: 3, retriesLeft: 3, expected: time.Second},
		{maxRetries: 3, retriesLeft: 2, expected: 2 * time.Second},
		{maxRetries: 3, retriesLeft: 1, expected: 4 * time.Second},
		{maxRetries: 5, retriesLeft: 1, expected: 16 * time.Second},
		{maxRetries: 3, retriesLeft: 5, expected: time.Second},
	}
	for _, row := range table {
		require.Equal(t, row.expected, Backoff(row.maxRetries, row.retriesLeft))
	}
}

func TestRetriesExhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, fake := newTestClient(t, server.URL, Options{})
	require.Equal(t, DefaultMaxRetries, client.MaxRetries())

	res, err := client.Get(context.Background(), "/course/view.php?id=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode())
	require.False(t, IsOk(res))
	require.EqualValues(t, 4, atomic.LoadInt32(&calls))
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, fake.Sleeps())
}

func TestRetryRecovers(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client, fake := newTestClient(t, server.URL, Options{})
	res, err := client.Get(context.Background(), "/")
	require.NoError(t, err)
	require.True(t, IsOk(res))
	require.Equal(t, "ok", res.String())
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fake.Sleeps())
}

func TestRequestWithFewerRetriesLeft(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, fake := newTestClient(t, server.URL, Options{})
	res, err := client.Request(context.Background(), "/", RequestOptions{}, 1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, res.StatusCode())
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
	require.Equal(t, []time.Duration{4 * time.Second}, fake.Sleeps())
}

func TestRetriesDisabled(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, fake := newTestClient(t, server.URL, Options{MaxRetries: -1})
	res, err := client.Get(context.Background(), "/")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, res.StatusCode())
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.Empty(t, fake.Sleeps())
}

func TestNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseUrl := server.URL
	server.Close()

	client, fake := newTestClient(t, baseUrl, Options{})
	res, err := client.Get(context.Background(), "/")
	require.Nil(t, res)
	require.Error(t, err)
	require.True(t, IsNetworkError(err))

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Equal(t, http.MethodGet, netErr.Method)
	require.Equal(t, baseUrl+"/", netErr.Url)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, fake.Sleeps())
}

func TestCancelledContextIsNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, fake := newTestClient(t, server.URL, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, "/")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, IsNetworkError(err))
	require.Empty(t, fake.Sleeps())
}

func TestHeadersAndSession(t *testing.T) {
	var got http.Header
	var cookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		c, err := r.Cookie("MoodleSession")
		if err == nil {
			cookie = c.Value
		}
	}))
	defer server.Close()

	sess, err := session.FromCookieHeader("MoodleSession=secret")
	require.NoError(t, err)

	client, _ := newTestClient(t, server.URL, Options{Session: sess})
	_, err = client.Do(context.Background(), "/", RequestOptions{
		Headers: map[string]string{"Accept": "application/json"},
	})
	require.NoError(t, err)

	require.Equal(t, "secret", cookie)
	require.Equal(t, "application/json", got.Get("Accept"))
	require.Equal(t, DefaultUserAgent, got.Get("User-Agent"))
	require.Equal(t, "navigate", got.Get("Sec-Fetch-Mode"))
	require.Equal(t, "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7", got.Get("Accept-Language"))
}

func TestAbsoluteUrlPassesThrough(t *testing.T) {
	var hitOther int32
	base := httptest.NewServer(http.NotFoundHandler())
	defer base.Close()
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hitOther, 1)
	}))
	defer other.Close()

	client, _ := newTestClient(t, base.URL, Options{})

	resolved, err := client.Resolve(other.URL + "/x?id=1")
	require.NoError(t, err)
	require.Equal(t, other.URL+"/x?id=1", resolved)

	resolved, err = client.Resolve("/mod/quiz/view.php?id=3")
	require.NoError(t, err)
	require.Equal(t, base.URL+"/mod/quiz/view.php?id=3", resolved)

	res, err := client.Get(context.Background(), other.URL+"/x")
	require.NoError(t, err)
	require.True(t, IsOk(res))
	require.EqualValues(t, 1, atomic.LoadInt32(&hitOther))
}

func TestPostFormFollowsRedirect(t *testing.T) {
	var form map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		form = map[string]string{"cmid": r.PostForm.Get("cmid"), "sesskey": r.PostForm.Get("sesskey")}
		http.Redirect(w, r, "/attempt.php?attempt=5&cmid=3", http.StatusSeeOther)
	})
	mux.HandleFunc("/attempt.php", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("question"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Options{})
	res, err := client.PostForm(context.Background(), "/start", map[string]string{"cmid": "3", "sesskey": "tok"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"cmid": "3", "sesskey": "tok"}, form)
	require.Equal(t, server.URL+"/attempt.php?attempt=5&cmid=3", FinalUrl(res))
	require.Equal(t, "question", res.String())
}

func TestPostMultipart(t *testing.T) {
	var fields map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Options{})
	_, err := client.PostMultipart(context.Background(), "/", map[string]string{
		"q1:1_:flagged": "0",
		"slots":         "1",
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"q1:1_:flagged": "0", "slots": "1"}, fields)
}

func TestDumpDir(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page " + r.URL.Path))
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "dump")
	client, _ := newTestClient(t, server.URL, Options{DumpDir: dir})

	_, err := client.Get(context.Background(), "/course/view.php?id=3")
	require.NoError(t, err)
	_, err = client.PostForm(context.Background(), "/mod/quiz/startattempt.php", map[string]string{"cmid": "5"})
	require.NoError(t, err)
	_, err = client.PostMultipart(context.Background(), "/mod/quiz/processattempt.php", map[string]string{"next": "Finish"})
	require.NoError(t, err)

	read := func(name string) string {
		contents, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return string(contents)
	}

	get := read("0001.txt")
	require.Contains(t, get, "GET "+server.URL+"/course/view.php?id=3")
	require.Contains(t, get, "page /course/view.php")

	form := read("0002.txt")
	require.Contains(t, form, "POST "+server.URL+"/mod/quiz/startattempt.php")
	require.Contains(t, form, "cmid=5")

	multipart := read("0003.txt")
	require.Contains(t, multipart, "POST "+server.URL+"/mod/quiz/processattempt.php")
	require.Contains(t, multipart, `name="next"`)
	require.Contains(t, multipart, "Finish")
}

func TestMarkComplete(t *testing.T) {
	var visited []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		visited = append(visited, r.URL.String())
		if r.URL.Query().Get("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, Options{MaxRetries: -1})
	require.NoError(t, client.MarkComplete(context.Background(), "10"))
	require.Equal(t, []string{"/mod/resource/view.php?id=10"}, visited)

	err := client.MarkComplete(context.Background(), "missing")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.Status)
}

func TestNewClientRejectsRelativeBase(t *testing.T) {
	_, err := NewClient(Options{
		BaseUrl:   "/relative",
		Time:      chrono.NewStandardTime(),
		Telemetry: telemetry.NewTestAPI(),
	})
	require.Error(t, err)
}
