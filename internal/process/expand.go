package process

import "strings"

// Expand replaces {{name}} placeholders in s with values from vars.
// Unknown placeholders are left as they are.
func Expand(s string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(s, "{{") {
		return s
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// ExpandAll applies Expand to every element and returns a new slice.
func ExpandAll(in []string, vars map[string]string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = Expand(s, vars)
	}
	return out
}

// redactArgs returns the unexpanded template when expansion changed
// anything, so secrets never reach the log.
func redactArgs(template, expanded []string) []string {
	for i := range template {
		if template[i] != expanded[i] {
			return template
		}
	}
	return expanded
}
