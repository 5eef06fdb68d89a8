package wire

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Attr is a single XML attribute. Attribute order is preserved so that
// encoding is deterministic and round-trips byte-for-byte.
type Attr struct {
	Name  string
	Value string
}

// Element is a generic XML element tree node. The codec works on Element
// values rather than typed structs because the protocol's property names
// are open-ended: in the legacy format every property is its own tag.
type Element struct {
	Tag      string
	Attrs    []Attr
	Text     string
	Children []*Element
}

// NewElement creates an element with the given tag.
func NewElement(tag string) *Element {
	return &Element{Tag: tag}
}

// Attr returns the value of the named attribute and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrDefault returns the named attribute or def when absent.
func (e *Element) AttrDefault(name, def string) string {
	if v, ok := e.Attr(name); ok {
		return v
	}
	return def
}

// SetAttr appends or replaces an attribute, keeping insertion order.
func (e *Element) SetAttr(name, value string) *Element {
	for i, a := range e.Attrs {
		if a.Name == name {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
	return e
}

// AddChild appends a child element and returns it.
func (e *Element) AddChild(tag string) *Element {
	child := NewElement(tag)
	e.Children = append(e.Children, child)
	return child
}

// Child returns the first child with the given tag, or nil.
func (e *Element) Child(tag string) *Element {
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// ChildText returns the trimmed text of the first child with the given tag.
func (e *Element) ChildText(tag string) string {
	if c := e.Child(tag); c != nil {
		return strings.TrimSpace(c.Text)
	}
	return ""
}

// Encode serializes the element to bytes with an XML declaration.
// Output is deterministic: attributes appear in insertion order.
func (e *Element) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	e.encodeTo(&buf)
	return buf.Bytes()
}

func (e *Element) encodeTo(buf *bytes.Buffer) {
	buf.WriteByte('<')
	buf.WriteString(e.Tag)
	for _, a := range e.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		xml.EscapeText(buf, []byte(a.Value))
		buf.WriteByte('"')
	}
	if e.Text == "" && len(e.Children) == 0 {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	if e.Text != "" {
		xml.EscapeText(buf, []byte(e.Text))
	}
	for _, c := range e.Children {
		c.encodeTo(buf)
	}
	buf.WriteString("</")
	buf.WriteString(e.Tag)
	buf.WriteByte('>')
}

// Parse decodes an XML document into an Element tree. It returns a
// *MalformedMessageError when the payload is not well-formed XML; it
// never silently returns an empty tree.
func Parse(data []byte) (*Element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var root *Element
	var stack []*Element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &MalformedMessageError{Data: data, Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := NewElement(t.Name.Local)
			for _, a := range t.Attr {
				// Skip namespace declarations; the protocol never uses them.
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				el.Attrs = append(el.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, &MalformedMessageError{
						Data: data,
						Err:  fmt.Errorf("multiple root elements"),
					}
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, &MalformedMessageError{
					Data: data,
					Err:  fmt.Errorf("unbalanced end element %q", t.Name.Local),
				}
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) > 0 {
				if text := strings.TrimSpace(string(t)); text != "" {
					stack[len(stack)-1].Text += text
				}
			}
		}
	}

	if root == nil {
		return nil, &MalformedMessageError{
			Data: data,
			Err:  fmt.Errorf("no root element"),
		}
	}
	if len(stack) != 0 {
		return nil, &MalformedMessageError{
			Data: data,
			Err:  fmt.Errorf("unterminated element %q", stack[len(stack)-1].Tag),
		}
	}
	return root, nil
}
