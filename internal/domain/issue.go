package domain

import (
	"maps"
	"net/url"
	"slices"
)

// IssueSummary is the decoded, read-only view of a single tracker issue.
type IssueSummary struct {
	self                *url.URL
	id                  int64
	key                 string
	summary             string
	description         *string
	renderedDescription *string
	issueType           string
	labels              []string
	fixVersions         []string
	customFieldValues   map[string]any
}

// IssueSummaryParams carries the values used to build an IssueSummary.
type IssueSummaryParams struct {
	Self                *url.URL
	ID                  int64
	Key                 string
	Summary             string
	Description         *string // nil when the tracker sent no description
	RenderedDescription *string // nil when renderedFields was not expanded
	Type                string
	Labels              []string
	FixVersions         []string
	CustomFieldValues   map[string]any // string or []string values
}

// NewIssueSummary copies p into an immutable IssueSummary.
// Nil collections become empty ones.
func NewIssueSummary(p IssueSummaryParams) IssueSummary {
	is := IssueSummary{
		id:                p.ID,
		key:               p.Key,
		summary:           p.Summary,
		issueType:         p.Type,
		labels:            cloneStrings(p.Labels),
		fixVersions:       cloneStrings(p.FixVersions),
		customFieldValues: make(map[string]any, len(p.CustomFieldValues)),
	}
	if p.Self != nil {
		u := *p.Self
		is.self = &u
	}
	if p.Description != nil {
		d := *p.Description
		is.description = &d
	}
	if p.RenderedDescription != nil {
		d := *p.RenderedDescription
		is.renderedDescription = &d
	}
	for name, v := range p.CustomFieldValues {
		if v == nil {
			continue // absent, not a nil entry
		}
		if list, ok := v.([]string); ok {
			v = cloneStrings(list)
		}
		is.customFieldValues[name] = v
	}
	return is
}

// Self returns a copy of the issue's REST URI.
func (i IssueSummary) Self() *url.URL {
	if i.self == nil {
		return nil
	}
	u := *i.self
	return &u
}

// ID returns the numeric issue id.
func (i IssueSummary) ID() int64 { return i.id }

// Key returns the issue key, e.g. "DEMO-42".
func (i IssueSummary) Key() string { return i.key }

// Summary returns the one-line summary.
func (i IssueSummary) Summary() string { return i.summary }

// Description returns the raw markup description, if any.
func (i IssueSummary) Description() (string, bool) {
	if i.description == nil {
		return "", false
	}
	return *i.description, true
}

// RenderedDescription returns the server-rendered HTML description, if any.
func (i IssueSummary) RenderedDescription() (string, bool) {
	if i.renderedDescription == nil {
		return "", false
	}
	return *i.renderedDescription, true
}

// Type returns the issue type name.
func (i IssueSummary) Type() string { return i.issueType }

// Labels returns a copy of the labels.
func (i IssueSummary) Labels() []string { return cloneStrings(i.labels) }

// FixVersions returns a copy of the fix version names.
func (i IssueSummary) FixVersions() []string { return cloneStrings(i.fixVersions) }

// CustomFieldValues returns a copy of all resolved custom field values keyed by field name.
func (i IssueSummary) CustomFieldValues() map[string]any {
	out := make(map[string]any, len(i.customFieldValues))
	for name, v := range i.customFieldValues {
		if list, ok := v.([]string); ok {
			v = cloneStrings(list)
		}
		out[name] = v
	}
	return out
}

// CustomField returns the value of the named custom field.
func (i IssueSummary) CustomField(name string) (any, bool) {
	v, ok := i.customFieldValues[name]
	if !ok {
		return nil, false
	}
	if list, ok := v.([]string); ok {
		return cloneStrings(list), true
	}
	return v, true
}

// CustomFieldString returns the named custom field if it holds a single string.
func (i IssueSummary) CustomFieldString(name string) (string, bool) {
	s, ok := i.customFieldValues[name].(string)
	return s, ok
}

// CustomFieldStrings returns the named custom field as a list.
// A single string value is returned as a one-element list.
func (i IssueSummary) CustomFieldStrings(name string) ([]string, bool) {
	switch v := i.customFieldValues[name].(type) {
	case []string:
		return cloneStrings(v), true
	case string:
		return []string{v}, true
	default:
		return nil, false
	}
}

// Equal reports whether two summaries carry the same values.
// Labels and fix versions compare as sets.
func (i IssueSummary) Equal(o IssueSummary) bool {
	if i.id != o.id || i.key != o.key || i.summary != o.summary || i.issueType != o.issueType {
		return false
	}
	if i.Self().String() != o.Self().String() {
		return false
	}
	if !equalPtr(i.description, o.description) || !equalPtr(i.renderedDescription, o.renderedDescription) {
		return false
	}
	if !sameSet(i.labels, o.labels) || !sameSet(i.fixVersions, o.fixVersions) {
		return false
	}
	return maps.EqualFunc(i.customFieldValues, o.customFieldValues, func(a, b any) bool {
		la, aok := a.([]string)
		lb, bok := b.([]string)
		if aok || bok {
			return aok && bok && slices.Equal(la, lb)
		}
		return a == b
	})
}

// String implements fmt.Stringer.
func (i IssueSummary) String() string {
	return "IssueSummary{key=" + i.key + ", summary=" + i.summary + "}"
}

// cloneStrings returns a non-nil copy of s.
func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// equalPtr compares two optional strings.
func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// sameSet compares two string slices ignoring order.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
