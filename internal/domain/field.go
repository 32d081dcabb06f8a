package domain

// Custom field schema types with a dedicated decoding branch.
const (
	FieldTypeString = "string"
	FieldTypeArray  = "array"
)

// CustomField describes a tracker custom field.
type CustomField struct {
	ID   string `json:"id"`   // server id, e.g. "customfield_10010"
	Name string `json:"name"` // human label callers look fields up by
	Type string `json:"type"` // schema.type; passed through when not string or array
}

// CascadingSelectOption is one node of a cascading-select option tree.
type CascadingSelectOption struct {
	Value string `json:"value"`
	// Parent is the chosen parent value; empty for root options.
	Parent   string                  `json:"parent,omitempty"`
	Children []CascadingSelectOption `json:"children,omitempty"`
}

// IsRoot reports whether the option has no parent.
func (o CascadingSelectOption) IsRoot() bool { return o.Parent == "" }

// Values returns the option's value followed by its descendants, depth first.
func (o CascadingSelectOption) Values() []string {
	out := []string{o.Value}
	for _, c := range o.Children {
		out = append(out, c.Values()...)
	}
	return out
}
