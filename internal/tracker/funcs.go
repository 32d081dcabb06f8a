package tracker

import (
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// TemplateFuncMap returns all helper functions for comment templates.
func TemplateFuncMap() template.FuncMap {
	fm := sprig.TxtFuncMap()
	fm["formatJiraDate"] = formatJiraDate
	fm["jiraLink"] = jiraLink
	return fm
}

// jiraLink renders a link in tracker wiki markup.
func jiraLink(text, target string) string {
	if text == "" {
		return "[" + target + "]"
	}
	return "[" + text + "|" + target + "]"
}

// formatJiraDate parses a tracker timestamp and returns it formatted using the provided layout.
// If parsing fails, the input is returned unchanged.
func formatJiraDate(input, layout string) string {
	input = strings.Replace(input, "Z", "+0000", 1) // normalize timezone
	parsed, err := time.Parse("2006-01-02T15:04:05.000-0700", input)
	if err != nil {
		return input
	}
	return parsed.Format(layout)
}
