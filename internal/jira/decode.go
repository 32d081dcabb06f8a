package jira

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/gi8lino/jiralink/internal/domain"
)

// CustomFieldResolver returns custom field values for one issue's "fields" object.
type CustomFieldResolver func(fields gjson.Result) map[string]any

// DecodeIssue maps one raw issue object into an IssueSummary.
// Missing description, rendered description, labels and fix versions are tolerated;
// a missing or invalid identity (self, id, key) or issue type is a decode failure.
func DecodeIssue(raw []byte, resolve CustomFieldResolver) (domain.IssueSummary, error) {
	if !gjson.ValidBytes(raw) {
		return domain.IssueSummary{}, &DecodeError{What: "issue", Raw: string(raw), Err: errors.New("invalid JSON")}
	}
	return decodeIssue(gjson.ParseBytes(raw), resolve)
}

// decodeIssue maps an already parsed issue object.
func decodeIssue(obj gjson.Result, resolve CustomFieldResolver) (domain.IssueSummary, error) {
	fail := func(err error) (domain.IssueSummary, error) {
		return domain.IssueSummary{}, &DecodeError{What: "issue", Raw: obj.Raw, Err: err}
	}
	if !obj.IsObject() {
		return fail(errors.New("issue is not an object"))
	}

	self, err := parseSelf(obj)
	if err != nil {
		return fail(err)
	}
	id, err := parseID(obj)
	if err != nil {
		return fail(err)
	}
	key := obj.Get("key")
	if key.Type != gjson.String || key.String() == "" {
		return fail(errors.New(`missing "key"`))
	}
	fields := obj.Get("fields")
	if !fields.IsObject() {
		return fail(errors.New(`missing "fields"`))
	}
	issueType := fields.Get("issuetype")
	if !issueType.IsObject() {
		return fail(errors.New(`missing "fields.issuetype"`))
	}

	var custom map[string]any
	if resolve != nil {
		custom = resolve(fields)
	}

	return domain.NewIssueSummary(domain.IssueSummaryParams{
		Self:                self,
		ID:                  id,
		Key:                 key.String(),
		Summary:             fields.Get("summary").String(),
		Description:         optionalString(fields.Get("description")),
		RenderedDescription: optionalString(obj.Get("renderedFields.description")),
		Type:                issueType.Get("name").String(),
		Labels:              stringList(fields.Get("labels"), ""),
		FixVersions:         stringList(fields.Get("fixVersions"), "name"),
		CustomFieldValues:   custom,
	}), nil
}

// DecodeVersions maps a project-versions response (a JSON array) into Versions.
func DecodeVersions(raw []byte) ([]domain.Version, error) {
	fail := func(err error) ([]domain.Version, error) {
		return nil, &DecodeError{What: "versions", Raw: string(raw), Err: err}
	}
	if !gjson.ValidBytes(raw) {
		return fail(errors.New("invalid JSON"))
	}
	arr := gjson.ParseBytes(raw)
	if !arr.IsArray() {
		return fail(errors.New("versions response is not an array"))
	}

	items := arr.Array()
	out := make([]domain.Version, 0, len(items))
	for _, v := range items {
		self, err := parseSelf(v)
		if err != nil {
			return nil, &DecodeError{What: "version", Raw: v.Raw, Err: err}
		}
		id, err := parseID(v)
		if err != nil {
			return nil, &DecodeError{What: "version", Raw: v.Raw, Err: err}
		}
		out = append(out, domain.Version{
			Self:     self,
			ID:       id,
			Name:     v.Get("name").String(),
			Archived: v.Get("archived").Bool(),
			Released: v.Get("released").Bool(),
		})
	}
	return out, nil
}

// DecodeCustomFields maps the field metadata list into custom field definitions.
// System fields are skipped.
func DecodeCustomFields(raw []byte) ([]domain.CustomField, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &DecodeError{What: "fields", Raw: string(raw), Err: errors.New("invalid JSON")}
	}
	arr := gjson.ParseBytes(raw)
	if !arr.IsArray() {
		return nil, &DecodeError{What: "fields", Raw: string(raw), Err: errors.New("field metadata is not an array")}
	}

	var out []domain.CustomField
	for _, f := range arr.Array() {
		if !isCustom(f) {
			continue
		}
		id, name := f.Get("id").String(), f.Get("name").String()
		if id == "" || name == "" {
			return nil, &DecodeError{What: "field", Raw: f.Raw, Err: errors.New(`missing "id" or "name"`)}
		}
		out = append(out, domain.CustomField{
			ID:   id,
			Name: name,
			Type: f.Get("schema.type").String(),
		})
	}
	return out, nil
}

// DecodeComments maps an issue comment listing into Comments.
func DecodeComments(raw []byte) ([]domain.Comment, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &DecodeError{What: "comments", Raw: string(raw), Err: errors.New("invalid JSON")}
	}
	list := gjson.GetBytes(raw, "comments")
	if !list.IsArray() {
		return nil, &DecodeError{What: "comments", Raw: string(raw), Err: errors.New(`missing "comments"`)}
	}

	items := list.Array()
	out := make([]domain.Comment, 0, len(items))
	for _, c := range items {
		cm, err := decodeComment(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cm)
	}
	return out, nil
}

// decodeComment maps a single comment object.
func decodeComment(c gjson.Result) (domain.Comment, error) {
	id, err := parseID(c)
	if err != nil {
		return domain.Comment{}, &DecodeError{What: "comment", Raw: c.Raw, Err: err}
	}
	author := c.Get("author.name").String()
	if author == "" {
		author = c.Get("author.displayName").String()
	}
	return domain.Comment{ID: id, Text: c.Get("body").String(), Author: author}, nil
}

// parseSelf reads and validates the "self" URI of obj.
func parseSelf(obj gjson.Result) (*url.URL, error) {
	raw := obj.Get("self")
	if raw.Type != gjson.String {
		return nil, errors.New(`missing "self"`)
	}
	u, err := url.Parse(raw.String())
	if err != nil {
		return nil, fmt.Errorf("self field not a valid URI: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("self field not an absolute URI: %q", raw.String())
	}
	return u, nil
}

// parseID reads the numeric "id" of obj, which trackers send as a string or a number.
func parseID(obj gjson.Result) (int64, error) {
	raw := obj.Get("id")
	switch raw.Type {
	case gjson.Number:
		return raw.Int(), nil
	case gjson.String:
		id, err := strconv.ParseInt(raw.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("id %q is not numeric: %w", raw.String(), err)
		}
		return id, nil
	default:
		return 0, errors.New(`missing "id"`)
	}
}

// optionalString returns nil for missing or null values.
func optionalString(r gjson.Result) *string {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	s := r.String()
	return &s
}

// stringList reads an array of strings, or of objects when prop names the string property.
// Missing or null arrays yield an empty list.
func stringList(r gjson.Result, prop string) []string {
	if !r.IsArray() {
		return []string{}
	}
	items := r.Array()
	out := make([]string, 0, len(items))
	for _, it := range items {
		if prop != "" && it.IsObject() {
			it = it.Get(prop)
		}
		if it.Type == gjson.String {
			out = append(out, it.String())
		}
	}
	return out
}

// isCustom reports whether a field metadata entry describes a custom field.
func isCustom(f gjson.Result) bool {
	if c := f.Get("custom"); c.Exists() {
		return c.Bool()
	}
	return strings.HasPrefix(f.Get("id").String(), "customfield_")
}
