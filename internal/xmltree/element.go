// Package xmltree is a small mutable element tree for problem documents.
//
// Grading transforms problems in place (choice naming, shuffling, answer
// pools) and hint lookups need the source line of the element they came from,
// neither of which encoding/xml's struct mapping gives us.
package xmltree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

type Attr struct {
	Name  string
	Value string
}

// Element is one node of a parsed document. Text is the character data before
// the first child; Tail is the character data following the end tag.
type Element struct {
	Tag      string
	Attrs    []Attr
	Text     string
	Tail     string
	Children []*Element
	Parent   *Element
	Line     int
}

func New(tag string, attrs ...Attr) *Element {
	return &Element{Tag: tag, Attrs: attrs}
}

// Parse reads a single-rooted document. HTML entities such as &nbsp; are
// accepted since authored content is full of them.
func Parse(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var root, cur *Element
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmltree: %w", err)
		}
		line, _ := dec.InputPos()
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Tag: t.Name.Local, Line: line}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{Name: attrName(a.Name), Value: a.Value})
			}
			if cur == nil {
				if root != nil {
					return nil, errors.New("xmltree: multiple root elements")
				}
				root = el
			} else {
				cur.Append(el)
			}
			cur = el
		case xml.EndElement:
			if cur == nil {
				return nil, fmt.Errorf("xmltree: unexpected </%s> at line %d", t.Name.Local, line)
			}
			cur = cur.Parent
		case xml.CharData:
			if cur == nil {
				continue
			}
			if n := len(cur.Children); n > 0 {
				cur.Children[n-1].Tail += string(t)
			} else {
				cur.Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("xmltree: empty document")
	}
	if cur != nil {
		return nil, fmt.Errorf("xmltree: unclosed <%s>", cur.Tag)
	}
	return root, nil
}

func ParseString(s string) (*Element, error) {
	return Parse(strings.NewReader(s))
}

func attrName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	if n.Space == "xmlns" || n.Space == "xml" {
		return n.Space + ":" + n.Local
	}
	return n.Local
}

// Get returns the attribute value or "" when absent.
func (e *Element) Get(name string) string {
	v, _ := e.Lookup(name)
	return v
}

func (e *Element) Lookup(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// GetDefault returns def when the attribute is absent.
func (e *Element) GetDefault(name, def string) string {
	if v, ok := e.Lookup(name); ok {
		return v
	}
	return def
}

func (e *Element) Set(name, value string) {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

func (e *Element) Append(child *Element) {
	if child.Parent != nil {
		child.Parent.Remove(child)
	}
	child.Parent = e
	e.Children = append(e.Children, child)
}

// Remove detaches child. Its tail text goes with it.
func (e *Element) Remove(child *Element) bool {
	for i, c := range e.Children {
		if c == child {
			e.Children = append(e.Children[:i], e.Children[i+1:]...)
			child.Parent = nil
			return true
		}
	}
	return false
}

// Find returns the first direct child with the given tag.
func (e *Element) Find(tag string) *Element {
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// FindAll returns the direct children with the given tag.
func (e *Element) FindAll(tag string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// FindPath walks a slash separated path of child tags, e.g. "checkboxgroup/choice".
func (e *Element) FindPath(path string) []*Element {
	cur := []*Element{e}
	for _, step := range strings.Split(path, "/") {
		var next []*Element
		for _, el := range cur {
			next = append(next, el.FindAll(step)...)
		}
		cur = next
	}
	return cur
}

// Descendants returns every element below e, in document order, whose tag is
// one of tags. No tags means all descendants.
func (e *Element) Descendants(tags ...string) []*Element {
	var out []*Element
	var walk func(*Element)
	walk = func(el *Element) {
		for _, c := range el.Children {
			if len(tags) == 0 || hasTag(tags, c.Tag) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(e)
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (e *Element) Root() *Element {
	r := e
	for r.Parent != nil {
		r = r.Parent
	}
	return r
}

// FollowingSiblings returns siblings after e with the given tag.
func (e *Element) FollowingSiblings(tag string) []*Element {
	if e.Parent == nil {
		return nil
	}
	var out []*Element
	seen := false
	for _, c := range e.Parent.Children {
		if c == e {
			seen = true
			continue
		}
		if seen && c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// Clone deep-copies e. The copy has no parent.
func (e *Element) Clone() *Element {
	c := &Element{
		Tag:  e.Tag,
		Text: e.Text,
		Tail: e.Tail,
		Line: e.Line,
	}
	c.Attrs = append([]Attr(nil), e.Attrs...)
	for _, ch := range e.Children {
		cc := ch.Clone()
		cc.Parent = c
		c.Children = append(c.Children, cc)
	}
	return c
}

// TextContent concatenates all character data under e.
func (e *Element) TextContent() string {
	var b strings.Builder
	var walk func(*Element)
	walk = func(el *Element) {
		b.WriteString(el.Text)
		for _, c := range el.Children {
			walk(c)
			b.WriteString(c.Tail)
		}
	}
	walk(e)
	return b.String()
}

// SourceLine is the line the element started on, or a placeholder when the
// element was built in memory.
func (e *Element) SourceLine() string {
	if e.Line <= 0 {
		return "<unavailable>"
	}
	return fmt.Sprint(e.Line)
}

// String serializes e (without its tail).
func (e *Element) String() string {
	var buf bytes.Buffer
	e.write(&buf)
	return buf.String()
}

func (e *Element) write(buf *bytes.Buffer) {
	buf.WriteByte('<')
	buf.WriteString(e.Tag)
	for _, a := range e.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		_ = xml.EscapeText(buf, []byte(a.Value))
		buf.WriteByte('"')
	}
	if e.Text == "" && len(e.Children) == 0 {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	_ = xml.EscapeText(buf, []byte(e.Text))
	for _, c := range e.Children {
		c.write(buf)
		_ = xml.EscapeText(buf, []byte(c.Tail))
	}
	buf.WriteString("</")
	buf.WriteString(e.Tag)
	buf.WriteByte('>')
}
