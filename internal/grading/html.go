package grading

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var fragmentContext = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}

// cleanMessageHTML normalizes author or grader markup shown to students:
// it is parsed as an HTML fragment, re-rendered with balanced tags and
// trimmed. An empty message stays empty.
func cleanMessageHTML(msg string) string {
	if msg == "" {
		return ""
	}
	msg = strings.ReplaceAll(msg, "&#60;", "&lt;")
	nodes, err := html.ParseFragment(strings.NewReader(msg), fragmentContext)
	if err != nil {
		return strings.TrimSpace(msg)
	}
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return strings.TrimSpace(msg)
		}
	}
	out := strings.ReplaceAll(buf.String(), "&#13;", "")
	out = strings.ReplaceAll(out, "\r", "")
	return strings.TrimSpace(out)
}

// validGraderMarkup accepts a message that is well-formed XML with a single
// root or, failing that, parses to a non-empty HTML fragment.
func validGraderMarkup(msg string) bool {
	if wellFormedXML(msg) {
		return true
	}
	nodes, err := html.ParseFragment(strings.NewReader(msg), fragmentContext)
	return err == nil && len(nodes) > 0
}

func wellFormedXML(s string) bool {
	dec := xml.NewDecoder(strings.NewReader(s))
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return roots == 1 && depth == 0
		}
		if err != nil {
			return false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return false
			}
		}
	}
}

// inlineError wraps a message for display next to an input.
func inlineError(msg string) string {
	return `<span class="inline-error">` + msg + `</span>`
}
