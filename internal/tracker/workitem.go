// Package tracker holds the work-item model shared by tracker adapters and
// the hand-off pipeline.
package tracker

import (
	"strconv"
	"strings"
)

// Kind tags the shape of a FieldValue.
type Kind int

const (
	KindAbsent Kind = iota
	KindBool
	KindNumber
	KindText
)

// FieldValue is a custom-field value of loosely defined shape. Adapters
// build it with Bool, Number, Text or Absent; the pipeline only reads it
// through Checked and String.
type FieldValue struct {
	kind Kind
	b    bool
	n    float64
	s    string
}

// Bool returns a boolean field value.
func Bool(b bool) FieldValue { return FieldValue{kind: KindBool, b: b} }

// Number returns a numeric field value.
func Number(n float64) FieldValue { return FieldValue{kind: KindNumber, n: n} }

// Text returns a text field value.
func Text(s string) FieldValue { return FieldValue{kind: KindText, s: s} }

// Absent returns the empty field value.
func Absent() FieldValue { return FieldValue{} }

// Kind reports the value's shape.
func (v FieldValue) Kind() Kind { return v.kind }

// Present reports whether the field carries any value.
func (v FieldValue) Present() bool { return v.kind != KindAbsent }

var checkedWords = map[string]bool{
	"true":    true,
	"1":       true,
	"yes":     true,
	"checked": true,
	"on":      true,
}

// Checked applies checkbox truthiness: true, the number 1, or one of
// "true", "1", "yes", "checked", "on" (any case). Everything else,
// including an absent value, is unchecked.
func (v FieldValue) Checked() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n == 1
	case KindText:
		return checkedWords[strings.ToLower(strings.TrimSpace(v.s))]
	default:
		return false
	}
}

// String renders the value as text. Absent renders as "".
func (v FieldValue) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindText:
		return v.s
	default:
		return ""
	}
}

// CustomField is one tracker-defined field on a work item.
type CustomField struct {
	Name  string
	ID    string
	Type  string
	Value FieldValue
}

// Attachment is a file already attached to a work item.
type Attachment struct {
	Name     string
	MimeType string
	URL      string
}

// WorkItem is a read-only snapshot of a task in the tracker.
type WorkItem struct {
	ID           string
	Title        string
	StatusLabel  string
	CustomFields []CustomField
	Description  string
	Attachments  []Attachment
}

// Field looks a custom field up by ID first, then by case-insensitive name.
func (w *WorkItem) Field(nameOrID string) (CustomField, bool) {
	if nameOrID == "" {
		return CustomField{}, false
	}
	for _, f := range w.CustomFields {
		if f.ID == nameOrID {
			return f, true
		}
	}
	for _, f := range w.CustomFields {
		if strings.EqualFold(strings.TrimSpace(f.Name), strings.TrimSpace(nameOrID)) {
			return f, true
		}
	}
	return CustomField{}, false
}

// FieldValue returns the value of a field, or Absent when it is missing.
func (w *WorkItem) FieldValue(nameOrID string) FieldValue {
	f, ok := w.Field(nameOrID)
	if !ok {
		return Absent()
	}
	return f.Value
}
