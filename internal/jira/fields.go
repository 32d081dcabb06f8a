package jira

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/gi8lino/jiralink/internal/domain"
)

// fieldIndexKey is the only key of the field index loader.
const fieldIndexKey = "fields"

// FieldIndex maps custom field names to their definitions.
type FieldIndex map[string]domain.CustomField

// NewFieldIndex builds a name index. The first definition of a duplicated name wins.
func NewFieldIndex(fields []domain.CustomField) FieldIndex {
	idx := make(FieldIndex, len(fields))
	for _, f := range fields {
		if _, dup := idx[f.Name]; dup {
			continue
		}
		idx[f.Name] = f
	}
	return idx
}

// IDs returns the server ids of the named fields that exist in the index.
func (idx FieldIndex) IDs(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if f, ok := idx[n]; ok {
			out = append(out, f.ID)
		}
	}
	return out
}

// Resolve extracts the wanted custom field values from one issue's "fields" object.
// Fields that are unknown, absent, or null contribute no entry.
func (idx FieldIndex) Resolve(fields gjson.Result, wanted []string) map[string]any {
	out := make(map[string]any, len(wanted))
	for _, name := range wanted {
		def, ok := idx[name]
		if !ok {
			continue
		}
		raw := child(fields, def.ID)
		if !raw.Exists() || raw.Type == gjson.Null {
			continue
		}
		switch def.Type {
		case domain.FieldTypeString:
			if v, ok := stringValue(raw); ok {
				out[name] = v
			}
		case domain.FieldTypeArray:
			if vs := cascadeValues(raw); len(vs) > 0 {
				out[name] = vs
			}
		default:
			if v, ok := stringValue(raw); ok {
				out[name] = v
			} else {
				out[name] = raw.Raw
			}
		}
	}
	return out
}

// CustomFields returns the custom field index, fetching it on first use.
// The index lives as long as the client; a failed fetch is retried on the next call.
func (c *Client) CustomFields(ctx context.Context) (FieldIndex, error) {
	idx, err := c.fieldIndex.Get(ctx, fieldIndexKey, func(ctx context.Context) (FieldIndex, error) {
		status, body, err := c.get(ctx, "field", nil)
		if err != nil {
			return nil, fmt.Errorf("fetch field metadata: %w", err)
		}
		if status != http.StatusOK {
			return nil, Classify(status, "field", body)
		}
		fields, err := DecodeCustomFields(body)
		if err != nil {
			c.logDecodeFailure(err)
			return nil, err
		}
		c.logger.Debug("custom field index loaded", "count", len(fields))
		return NewFieldIndex(fields), nil
	})
	if err != nil {
		return nil, abandoned("field", err)
	}
	return idx, nil
}

// resolver returns a CustomFieldResolver for the configured field names,
// or nil when no custom fields are wanted.
func (c *Client) resolver(ctx context.Context) (CustomFieldResolver, FieldIndex, error) {
	if len(c.customFields) == 0 {
		return nil, nil, nil
	}
	idx, err := c.CustomFields(ctx)
	if err != nil {
		return nil, nil, err
	}
	return func(fields gjson.Result) map[string]any {
		return idx.Resolve(fields, c.customFields)
	}, idx, nil
}

// stringValue returns a plain string, or the "value" property of an option object.
func stringValue(r gjson.Result) (string, bool) {
	switch {
	case r.Type == gjson.String:
		return r.String(), true
	case r.IsObject():
		if v := r.Get("value"); v.Exists() && v.Type != gjson.Null {
			return v.String(), true
		}
		if v := r.Get("name"); v.Exists() && v.Type != gjson.Null {
			return v.String(), true
		}
	}
	return "", false
}

// cascadeValues flattens a selected cascade path: parent value first, then each nested child.
// Multi-value arrays are flattened element by element.
func cascadeValues(r gjson.Result) []string {
	switch {
	case r.IsArray():
		var out []string
		for _, it := range r.Array() {
			out = append(out, cascadeValues(it)...)
		}
		return out
	case r.Type == gjson.String:
		return []string{r.String()}
	case r.IsObject():
		v := r.Get("value")
		if !v.Exists() || v.Type == gjson.Null {
			return nil
		}
		out := []string{v.String()}
		if next := r.Get("child"); next.IsObject() {
			out = append(out, cascadeValues(next)...)
		}
		return out
	default:
		return nil
	}
}

// child returns the member of obj named key without interpreting path syntax.
func child(obj gjson.Result, key string) gjson.Result {
	var out gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			out = v
			return false
		}
		return true
	})
	return out
}
