package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText strips non-printable characters, trims the ends and collapses inner runs of whitespace
// into a single space.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.TrimSpace(s)
	return innerWhitespace.ReplaceAllString(s, " ")
}

// Element is a node (or the root) of a parsed html document. It exposes the small set of queries
// the scrapers need so that they do not depend on css selector syntax for attribute matching.
type Element struct {
	sel *goquery.Selection
}

// Parse parses an html document and returns its root element.
func Parse(body []byte) (Element, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Element{}, err
	}
	return Element{sel: doc.Selection}, nil
}

func elements(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, Element{sel: s})
	})
	return out
}

// Find returns every descendant matching a css selector, in document order.
func (e Element) Find(selector string) []Element {
	if e.sel == nil {
		return nil
	}
	return elements(e.sel.Find(selector))
}

// First returns the first descendant matching a css selector.
func (e Element) First(selector string) (Element, bool) {
	if e.sel == nil {
		return Element{}, false
	}
	found := e.sel.Find(selector).First()
	if found.Length() == 0 {
		return Element{}, false
	}
	return Element{sel: found}, true
}

// FindByTag returns every descendant with the given tag name, in document order.
func (e Element) FindByTag(tag string) []Element {
	return e.Find(tag)
}

func (e Element) Attr(name string) (string, bool) {
	if e.sel == nil {
		return "", false
	}
	return e.sel.Attr(name)
}

func (e Element) AttrOr(name, fallback string) string {
	v, ok := e.Attr(name)
	if !ok {
		return fallback
	}
	return v
}

func (e Element) HasClass(class string) bool {
	if e.sel == nil {
		return false
	}
	return e.sel.HasClass(class)
}

// Text returns the cleaned text content of the element.
func (e Element) Text() string {
	if e.sel == nil || len(e.sel.Nodes) == 0 {
		return ""
	}
	var out strings.Builder
	for _, n := range e.sel.Nodes {
		out.WriteString(GetText(n))
	}
	return CleanText(out.String())
}
