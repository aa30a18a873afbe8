// Package location gates orchestration on the page the user says they are on.
package location

import (
	"coursepilot/internal/lms"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrWrongOrigin     = errors.New("page is not on the learning platform")
	ErrNotCoursePage   = errors.New("page is not a course page, select a course first")
	ErrMissingCourseId = errors.New("course page has no course id")
)

// Check verifies that `page` is a course view page on the same host as `baseUrl` and returns the
// course id found in its query.
func Check(page string, baseUrl *url.URL) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(page))
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	if !strings.EqualFold(parsed.Hostname(), baseUrl.Hostname()) {
		return "", fmt.Errorf("%w: %q", ErrWrongOrigin, parsed.Hostname())
	}
	if parsed.Path != lms.CourseViewPath {
		return "", fmt.Errorf("%w: %q", ErrNotCoursePage, parsed.Path)
	}
	courseId := parsed.Query().Get("id")
	if courseId == "" {
		return "", ErrMissingCourseId
	}
	return courseId, nil
}
