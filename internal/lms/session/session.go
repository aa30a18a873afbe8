// Package session models the credentials of an already authenticated browser session.
//
// The engine never logs in by itself: it only replays the cookies it is handed and lets the
// cookie jar absorb whatever the server sets in response to its own requests.
package session

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
)

// Session is an opaque credential carrier.
type Session struct {
	cookies []*http.Cookie
}

// FromCookieHeader parses the value of a `Cookie` request header (`a=1; b=2`), as it can be copied
// out of a browser's developer tools.
func FromCookieHeader(header string) (Session, error) {
	header = strings.TrimSpace(header)
	header = strings.TrimPrefix(header, "Cookie:")
	header = strings.TrimSpace(header)
	if header == "" {
		return Session{}, nil
	}

	req := http.Request{Header: http.Header{"Cookie": {header}}}
	cookies := req.Cookies()
	if len(cookies) == 0 {
		return Session{}, fmt.Errorf("parse cookie header: no valid cookies found")
	}
	return Session{cookies: cookies}, nil
}

// FromMap creates a session out of cookie name/value pairs, ordered by name.
func FromMap(values map[string]string) Session {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, &http.Cookie{Name: name, Value: values[name]})
	}
	return Session{cookies: cookies}
}

func (s Session) Empty() bool {
	return len(s.cookies) == 0
}

// Names returns the cookie names carried by the session, values are never exposed for logging.
func (s Session) Names() []string {
	names := make([]string, len(s.cookies))
	for i, c := range s.cookies {
		names[i] = c.Name
	}
	return names
}

// Jar creates a cookie jar seeded with the session's cookies for the given origin.
func (s Session) Jar(origin *url.URL) (http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if len(s.cookies) > 0 {
		seeded := make([]*http.Cookie, len(s.cookies))
		for i, c := range s.cookies {
			copied := *c
			if copied.Path == "" {
				copied.Path = "/"
			}
			seeded[i] = &copied
		}
		jar.SetCookies(origin, seeded)
	}
	return jar, nil
}

func (s Session) String() string {
	return fmt.Sprintf("session(%s)", strings.Join(s.Names(), ","))
}
