package extract

import (
	"coursepilot/pkg/htmlutil"
	"net/url"
	"strings"
)

type ActivityKind int

const (
	// KindResource is completed by visiting it.
	KindResource ActivityKind = iota
	// KindQuiz must go through a quiz attempt.
	KindQuiz
)

func (k ActivityKind) String() string {
	switch k {
	case KindResource:
		return "resource"
	case KindQuiz:
		return "quiz"
	default:
		return "unknown"
	}
}

// DefaultTriggerWords mark an activity as a quiz when its name contains one of them.
var DefaultTriggerWords = []string{"responda", "pause"}

// ActivityRef is one linked activity found on the course page.
type ActivityRef struct {
	Id              string
	Kind            ActivityKind
	DisplayName     string
	Href            *url.URL
	AlreadyComplete bool
}

// CourseScan is the result of reading a course page.
type CourseScan struct {
	// Activities with a link and a page id, complete or not, in page order.
	Activities []ActivityRef
	// Unlinked counts incomplete activities without a discoverable link.
	Unlinked int
	// Unidentified counts incomplete activities whose link has no page id, they are ignored.
	Unidentified int
}

// HasRemaining reports whether some incomplete activity could not be classified.
func (s CourseScan) HasRemaining() bool {
	return s.Unlinked > 0
}

// Pending splits the incomplete activities into resources and quizzes, preserving page order.
func (s CourseScan) Pending() (resources, quizzes []ActivityRef) {
	for _, a := range s.Activities {
		if a.AlreadyComplete {
			continue
		}
		switch a.Kind {
		case KindQuiz:
			quizzes = append(quizzes, a)
		default:
			resources = append(resources, a)
		}
	}
	return resources, quizzes
}

// Classify decides the kind of an activity from its name: a case-insensitive substring match on
// any trigger word makes it a quiz.
func Classify(name string, triggerWords []string) ActivityKind {
	lowered := strings.ToLower(name)
	for _, word := range triggerWords {
		if word == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(word)) {
			return KindQuiz
		}
	}
	return KindResource
}

// IsComplete reports whether an activity element carries the "success" completion indicator.
func IsComplete(activity htmlutil.Element) bool {
	for _, button := range activity.Find(".completion-dropdown button") {
		if button.HasClass("btn-success") {
			return true
		}
	}
	return false
}

// ScanCourse reads every `li.activity` of a course page. Relative links are resolved against
// pageUrl.
func ScanCourse(doc htmlutil.Element, pageUrl *url.URL, triggerWords []string) CourseScan {
	var scan CourseScan

	for _, activity := range doc.Find("li.activity") {
		complete := IsComplete(activity)

		link, ok := activity.First("a.aalink")
		href := ""
		if ok {
			href = strings.TrimSpace(link.AttrOr("href", ""))
		}
		if href == "" {
			if !complete {
				scan.Unlinked++
			}
			continue
		}

		parsed, err := url.Parse(href)
		if err != nil {
			if !complete {
				scan.Unlinked++
			}
			continue
		}
		if pageUrl != nil {
			parsed = pageUrl.ResolveReference(parsed)
		}

		pageId := parsed.Query().Get("id")
		if pageId == "" {
			if !complete {
				scan.Unidentified++
			}
			continue
		}

		name := link.Text()
		scan.Activities = append(scan.Activities, ActivityRef{
			Id:              pageId,
			Kind:            Classify(name, triggerWords),
			DisplayName:     name,
			Href:            parsed,
			AlreadyComplete: complete,
		})
	}

	return scan
}

// CourseScanFromHtml parses an html course page and scans it.
func CourseScanFromHtml(body []byte, pageUrl *url.URL, triggerWords []string) (CourseScan, error) {
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return CourseScan{}, err
	}
	return ScanCourse(doc, pageUrl, triggerWords), nil
}
