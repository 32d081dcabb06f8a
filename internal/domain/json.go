package domain

import "encoding/json"

// issueJSON is the wire shape used when printing issues.
type issueJSON struct {
	Self                string         `json:"self"`
	ID                  int64          `json:"id"`
	Key                 string         `json:"key"`
	Summary             string         `json:"summary"`
	Description         *string        `json:"description"`
	RenderedDescription *string        `json:"renderedDescription,omitempty"`
	Type                string         `json:"type"`
	Labels              []string       `json:"labels"`
	FixVersions         []string       `json:"fixVersions"`
	CustomFields        map[string]any `json:"customFields,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (i IssueSummary) MarshalJSON() ([]byte, error) {
	out := issueJSON{
		ID:                  i.id,
		Key:                 i.key,
		Summary:             i.summary,
		Description:         i.description,
		RenderedDescription: i.renderedDescription,
		Type:                i.issueType,
		Labels:              i.labels,
		FixVersions:         i.fixVersions,
		CustomFields:        i.customFieldValues,
	}
	if i.self != nil {
		out.Self = i.self.String()
	}
	return json.Marshal(out)
}

// MarshalJSON implements json.Marshaler.
func (v Version) MarshalJSON() ([]byte, error) {
	self := ""
	if v.Self != nil {
		self = v.Self.String()
	}
	return json.Marshal(struct {
		Self     string `json:"self"`
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Archived bool   `json:"archived"`
		Released bool   `json:"released"`
	}{self, v.ID, v.Name, v.Archived, v.Released})
}
