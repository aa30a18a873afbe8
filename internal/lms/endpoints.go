// Package lms holds the endpoint layout of the learning platform shared by the scrapers.
package lms

import (
	"net/url"
)

const (
	DefaultBaseUrl = "https://expansao.educacao.sp.gov.br"

	CourseViewPath         = "/course/view.php"
	ResourceViewPath       = "/mod/resource/view.php"
	QuizStartAttemptPath   = "/mod/quiz/startattempt.php"
	QuizProcessAttemptPath = "/mod/quiz/processattempt.php"
	QuizSummaryPath        = "/mod/quiz/summary.php"
)

func withQuery(path string, values url.Values) string {
	return path + "?" + values.Encode()
}

// CourseView is the page listing every activity of a course.
func CourseView(courseId string) string {
	return withQuery(CourseViewPath, url.Values{"id": {courseId}})
}

// ResourceView is the page of a simple resource, visiting it marks the resource as viewed.
func ResourceView(pageId string) string {
	return withQuery(ResourceViewPath, url.Values{"id": {pageId}})
}

// QuizProcessAttempt is where answers for the quiz with the given context id are posted.
func QuizProcessAttempt(contextId string) string {
	return withQuery(QuizProcessAttemptPath, url.Values{"cmid": {contextId}})
}

// QuizSummary is the review page shown before an attempt is finished.
func QuizSummary(attemptId, contextId string) string {
	return withQuery(QuizSummaryPath, url.Values{
		"attempt": {attemptId},
		"cmid":    {contextId},
	})
}
