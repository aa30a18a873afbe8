package extract

import (
	"coursepilot/pkg/htmlutil"
	"strings"
)

// NoAnswerValue is the value of the radio input that clears a selection.
const NoAnswerValue = "-1"

// PassthroughFields are hidden inputs copied verbatim into the answer submission.
var PassthroughFields = []string{"thispage", "nextpage", "timeup", "mdlscrollto", "slots"}

type AnswerOption struct {
	Name  string
	Value string
}

// QuestionForm is the state of a rendered question page needed to answer it.
type QuestionForm struct {
	QuestionId    string
	SequenceCheck string
	Attempt       string
	Sesskey       string
	AnswerOptions []AnswerOption
	HiddenFields  map[string]string
}

func isPassthrough(name string) bool {
	for _, f := range PassthroughFields {
		if f == name {
			return true
		}
	}
	return false
}

// ParseQuestionForm walks every input of the page in document order. Hidden inputs fill the
// form's bookkeeping fields and radio inputs become answer options, excluding the "no answer"
// option.
func ParseQuestionForm(doc htmlutil.Element) QuestionForm {
	form := QuestionForm{HiddenFields: map[string]string{}}

	for _, input := range doc.FindByTag("input") {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			continue
		}
		value := input.AttrOr("value", "")

		switch strings.ToLower(input.AttrOr("type", "")) {
		case "hidden":
			switch {
			case strings.Contains(name, ":sequencecheck"):
				form.QuestionId, _, _ = strings.Cut(name, ":")
				form.SequenceCheck = value
			case name == "attempt":
				form.Attempt = value
			case name == "sesskey":
				form.Sesskey = value
			case isPassthrough(name):
				form.HiddenFields[name] = value
			}
		case "radio":
			if strings.Contains(name, "_answer") && value != NoAnswerValue {
				form.AnswerOptions = append(form.AnswerOptions, AnswerOption{Name: name, Value: value})
			}
		}
	}

	return form
}

// QuestionFormFromHtml parses an html page and extracts its question form.
func QuestionFormFromHtml(body []byte) (QuestionForm, error) {
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return QuestionForm{}, err
	}
	return ParseQuestionForm(doc), nil
}
