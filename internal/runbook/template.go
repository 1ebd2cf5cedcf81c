package runbook

import (
	"os"
	"regexp"
)

// envVarPattern matches ${VAR:-default}. Only this form is ported from the
// donor's broader expandEnvVars (which also handled bare $VAR and ${VAR}
// without a default): the runbook's shell commands legitimately contain
// plain $VAR references meant for the subshell, not for interpolation, so
// only the explicit-default form is treated as an interpolation target.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*):-([^}]*)\}`)

// variablePattern matches {name} placeholders.
var variablePattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces every ${VAR:-default} occurrence in s with the value of
// the named environment variable, or default when it is unset or empty.
func ExpandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[2]
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		return def
	})
}

// Interpolate substitutes {name} placeholders from vars, leaving any
// placeholder whose name is not in vars unchanged. Environment expansion via
// ExpandEnv must run before Interpolate, per the template law in the
// testable-properties section: env expansion precedes variable expansion.
func Interpolate(s string, vars map[string]string) string {
	return variablePattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// Render applies ExpandEnv then Interpolate, the canonical two-stage
// template resolution used throughout the runbook.
func Render(s string, vars map[string]string) string {
	return Interpolate(ExpandEnv(s), vars)
}
