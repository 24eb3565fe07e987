package screen

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFieldNotFound is returned when a required keyword is absent from a capture
var ErrFieldNotFound = errors.New("field not found")

// NotAssigned is reported when the assignee slot holds a date instead of a name
const NotAssigned = "Not assigned"

// FieldError names the field and keyword that could not be located
type FieldError struct {
	Field   string
	Keyword string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: keyword %q not found on screen", e.Field, e.Keyword)
}

func (e *FieldError) Unwrap() error {
	return ErrFieldNotFound
}

// Field describes where a value lives relative to its keyword: the value is
// Offset tokens after the first token of Keyword.
type Field struct {
	Name    string
	Keyword []string
	Offset  int
}

// Screen layout of the failure analysis screens
var (
	AssigneeField   = Field{Name: "assignee", Keyword: []string{"Note"}, Offset: 2}
	SLAField        = Field{Name: "sla", Keyword: []string{"SLA"}, Offset: 2}
	ReturnTypeField = Field{Name: "return type", Keyword: []string{"RMA#"}, Offset: 2}
	PartNumberField = Field{Name: "part number", Keyword: []string{"Part", "Number"}, Offset: 3}
	OtherField      = Field{Name: "date entered", Keyword: []string{"Other:"}, Offset: 1}
)

// Lookup returns the value of a field
func (t Tokens) Lookup(f Field) (string, error) {
	i := t.index(f.Keyword)
	if i < 0 || i+f.Offset >= len(t) {
		return "", &FieldError{Field: f.Name, Keyword: strings.Join(f.Keyword, " ")}
	}
	return t[i+f.Offset].Text, nil
}

// Assignee returns who the RMA is assigned to. An unclaimed RMA shows its
// date (MM/DD/YY) in the name slot, which is reported as NotAssigned.
func (t Tokens) Assignee() (string, error) {
	value, err := t.Lookup(AssigneeField)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(value, "1") || strings.HasPrefix(value, "0") {
		return NotAssigned, nil
	}
	return value, nil
}

// SLA returns "Yes" when the item is under SLA and "No" otherwise
func (t Tokens) SLA() (string, error) {
	value, err := t.Lookup(SLAField)
	if err != nil {
		return "", err
	}
	if value == "Y" {
		return "Yes", nil
	}
	return "No", nil
}

// ReturnType returns the return type listed after "RMA#"
func (t Tokens) ReturnType() (string, error) {
	return t.Lookup(ReturnTypeField)
}

// PartNumber returns the part number listed after "Part Number"
func (t Tokens) PartNumber() (string, error) {
	return t.Lookup(PartNumberField)
}

// DateEntered reports whether the "Other:" field already holds a value. The
// field is blank when nothing follows it on the same line.
func (t Tokens) DateEntered() (bool, error) {
	i := t.index(OtherField.Keyword)
	if i < 0 {
		return false, &FieldError{Field: OtherField.Name, Keyword: OtherField.Keyword[0]}
	}
	next := i + OtherField.Offset
	if next >= len(t) || t[next].Line != t[i].Line {
		return false, nil
	}
	return true, nil
}
