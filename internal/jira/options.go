package jira

import (
	"context"
	"errors"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/gi8lino/jiralink/internal/domain"
)

// CascadingOptions returns the option tree of a cascading-select field as configured for
// the given project and issue type. Failures are logged and yield an empty list.
func (c *Client) CascadingOptions(ctx context.Context, project, issueType, fieldName string) []domain.CascadingSelectOption {
	opts, err := c.cascadingOptions(ctx, project, issueType, fieldName)
	if err != nil {
		c.logger.Warn("cascading options unavailable",
			"project", project,
			"issueType", issueType,
			"field", fieldName,
			"error", err,
		)
		return []domain.CascadingSelectOption{}
	}
	return opts
}

// cascadingOptions fetches create metadata and builds the option tree of fieldName.
func (c *Client) cascadingOptions(ctx context.Context, project, issueType, fieldName string) ([]domain.CascadingSelectOption, error) {
	status, body, err := c.get(ctx, "issue/createmeta", map[string]string{
		"project":        project,
		"projectKeys":    project,
		"issuetypeName":  issueType,
		"issuetypeNames": issueType,
		"expand":         "projects.issuetypes.fields",
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, Classify(status, "issue/createmeta", body)
	}

	var fieldID string
	if idx, err := c.CustomFields(ctx); err == nil {
		if def, ok := idx[fieldName]; ok {
			fieldID = def.ID
		}
	}

	opts, err := DecodeCascadingOptions(body, fieldID, fieldName)
	if err != nil {
		c.logDecodeFailure(err)
		return nil, err
	}
	return opts, nil
}

// DecodeCascadingOptions finds the field (by id, or by name when id is empty or unknown) in a
// create-metadata response and builds its option tree from allowedValues and children.
func DecodeCascadingOptions(raw []byte, fieldID, fieldName string) ([]domain.CascadingSelectOption, error) {
	if !gjson.ValidBytes(raw) {
		return nil, &DecodeError{What: "createmeta", Raw: string(raw), Err: errors.New("invalid JSON")}
	}

	field := findMetaField(gjson.ParseBytes(raw), fieldID, fieldName)
	if !field.Exists() {
		return nil, &DecodeError{What: "createmeta", Raw: string(trim(raw, 2048)), Err: errors.New("field " + fieldName + " not found")}
	}

	allowed := field.Get("allowedValues")
	if !allowed.IsArray() {
		return []domain.CascadingSelectOption{}, nil
	}
	return buildOptions(allowed, ""), nil
}

// findMetaField walks projects[].issuetypes[].fields for the wanted field.
func findMetaField(meta gjson.Result, fieldID, fieldName string) gjson.Result {
	var found gjson.Result
	for _, p := range meta.Get("projects").Array() {
		for _, it := range p.Get("issuetypes").Array() {
			it.Get("fields").ForEach(func(id, f gjson.Result) bool {
				if (fieldID != "" && id.String() == fieldID) || f.Get("name").String() == fieldName {
					found = f
					return false
				}
				return true
			})
			if found.Exists() {
				return found
			}
		}
	}
	return found
}

// buildOptions converts an allowedValues/children array into options below parent.
func buildOptions(list gjson.Result, parent string) []domain.CascadingSelectOption {
	items := list.Array()
	out := make([]domain.CascadingSelectOption, 0, len(items))
	for _, it := range items {
		value := it.Get("value").String()
		opt := domain.CascadingSelectOption{Value: value, Parent: parent}
		if kids := it.Get("children"); kids.IsArray() {
			opt.Children = buildOptions(kids, value)
		}
		out = append(out, opt)
	}
	return out
}
