// Package extract turns pages and redirect urls returned by the platform into structured data.
// Every function here is pure.
package extract

import (
	"net/url"
	"regexp"
)

var (
	ContextInstanceIdPattern = regexp.MustCompile(`contextInstanceId":(\d+)`)
	SesskeyPattern           = regexp.MustCompile(`sesskey":"([^"]+)`)
	AttemptPattern           = regexp.MustCompile(`attempt=(\d+)`)
)

// UrlParam returns the value of a query parameter, or "" when the url cannot be parsed or the
// parameter is absent.
func UrlParam(rawUrl, name string) string {
	parsed, err := url.Parse(rawUrl)
	if err != nil {
		return ""
	}
	return parsed.Query().Get(name)
}

// ByPattern returns the first capture group of the first match of pattern in text, or "" when
// there is no match.
func ByPattern(text string, pattern *regexp.Regexp) string {
	groups := pattern.FindStringSubmatch(text)
	if len(groups) < 2 {
		return ""
	}
	return groups[1]
}
