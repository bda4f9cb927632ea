package vision

import "encoding/json"

// ElementKind classifies a detected field for fill dispatch and filtering.
type ElementKind string

const (
	KindText     ElementKind = "text"
	KindTextarea ElementKind = "textarea"
	KindSelect   ElementKind = "select"
	KindCheckbox ElementKind = "checkbox"
	KindRadio    ElementKind = "radio"
	KindFile     ElementKind = "file"
	KindButton   ElementKind = "button"
	KindHidden   ElementKind = "hidden"
)

// Rect is the element's bounding box at scan time. Diagnostics only.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SelectOption is one option of a select-kind field.
type SelectOption struct {
	Value    string `json:"value"`
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
}

// FieldDescriptor is one interactive element found by a page scan. The field
// names mirror the JSON the in-page scan script produces.
type FieldDescriptor struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name,omitempty"`
	Type        string         `json:"type"`
	TagName     string         `json:"tagName"`
	Label       string         `json:"label"`
	Placeholder string         `json:"placeholder,omitempty"`
	Value       string         `json:"value,omitempty"`
	Required    bool           `json:"required"`
	Disabled    bool           `json:"disabled"`
	Selector    string         `json:"selector"`
	Rect        Rect           `json:"rect"`
	InShadowDOM bool           `json:"inShadowDOM"`
	Options     []SelectOption `json:"options,omitempty"`
}

// Kind maps the raw tag/type pair onto the fill-dispatch classification.
func (f FieldDescriptor) Kind() ElementKind {
	switch f.TagName {
	case "textarea":
		return KindTextarea
	case "select":
		return KindSelect
	case "button":
		return KindButton
	}
	switch f.Type {
	case "checkbox":
		return KindCheckbox
	case "radio":
		return KindRadio
	case "file":
		return KindFile
	case "hidden":
		return KindHidden
	case "button", "submit":
		return KindButton
	}
	return KindText
}

// IsStructural reports whether the field carries no answerable question:
// buttons, hidden inputs and submit controls are skipped by the orchestrator.
func (f FieldDescriptor) IsStructural() bool {
	switch f.Kind() {
	case KindButton, KindHidden:
		return true
	}
	return false
}

// Question returns the text the oracle should be asked for this field:
// the inferred label, falling back to name then placeholder.
func (f FieldDescriptor) Question() string {
	if f.Label != "" {
		return f.Label
	}
	if f.Name != "" {
		return f.Name
	}
	return f.Placeholder
}

// decodeScan converts the raw page.Evaluate result into descriptors via a
// JSON round trip. Anything malformed decodes to an empty list.
func decodeScan(raw interface{}) ([]FieldDescriptor, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var fields []FieldDescriptor
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
