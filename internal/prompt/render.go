// Package prompt renders the AI prompt templates shipped in the config file.
package prompt

import "regexp"

var markerPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render replaces {{key}} markers in a template with values from vars.
// Missing keys are replaced with an empty string.
func Render(template string, vars map[string]string) string {
	return markerPattern.ReplaceAllStringFunc(template, func(marker string) string {
		key := markerPattern.FindStringSubmatch(marker)[1]
		return vars[key]
	})
}
