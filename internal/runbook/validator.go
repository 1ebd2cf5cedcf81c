package runbook

import "fmt"

// Validate rejects a resolved Runbook whose cross-references are
// inconsistent: an unknown next/on_fail phase, an unknown agent reference,
// a duplicate phase name within one pipeline, a declared input missing a
// default, or a default for an undeclared input.
func Validate(rb Runbook) error {
	for pname, p := range rb.Pipelines {
		if p.Worker != "" {
			if _, ok := rb.Workers[p.Worker]; !ok {
				return fmt.Errorf("runbook: pipeline %s references unknown worker %q", pname, p.Worker)
			}
		}

		for _, in := range p.Inputs {
			if _, ok := p.Defaults[in]; !ok {
				return fmt.Errorf("runbook: pipeline %s: required input %q has no default", pname, in)
			}
		}
		for name := range p.Defaults {
			if !containsString(p.Inputs, name) {
				return fmt.Errorf("runbook: pipeline %s: default given for undeclared input %q", pname, name)
			}
		}

		seen := map[string]bool{}
		for _, ph := range p.Phases {
			if seen[ph.Name] {
				return fmt.Errorf("runbook: pipeline %s: duplicate phase %q", pname, ph.Name)
			}
			seen[ph.Name] = true

			if ph.Agent != "" {
				if _, ok := rb.Agents[ph.Agent]; !ok {
					return fmt.Errorf("runbook: pipeline %s: phase %s references unknown agent %q", pname, ph.Name, ph.Agent)
				}
			}
		}

		for _, ph := range p.Phases {
			if ph.Next != "" && !isTerminalPhase(ph.Next) && !seen[ph.Next] {
				return fmt.Errorf("runbook: pipeline %s: phase %s.next references unknown phase %q", pname, ph.Name, ph.Next)
			}
			if ph.OnFail != "" && !isTerminalPhase(ph.OnFail) && !seen[ph.OnFail] {
				return fmt.Errorf("runbook: pipeline %s: phase %s.on_fail references unknown phase %q", pname, ph.Name, ph.OnFail)
			}
		}
	}

	for _, t := range templateSources(rb) {
		if undeclared := firstUndeclaredVariable(t.text, t.vars); undeclared != "" {
			return fmt.Errorf("runbook: %s references undeclared variable %q", t.source, undeclared)
		}
	}

	return nil
}

// isTerminalPhase reports whether name is one of the built-in sink phases
// every pipeline may transition into without declaring them explicitly.
func isTerminalPhase(name string) bool {
	return name == "done" || name == "failed"
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type templateRef struct {
	source string
	text   string
	vars   map[string]string
}

// templateSources enumerates every template string in the runbook that is
// resolved against a known variable set at load time (phase shell
// commands), so undeclared-variable references can be rejected eagerly.
// Agent prompts are resolved at spawn time against pipeline inputs, which
// are not known until a pipeline is created, so they are not checked here.
func templateSources(rb Runbook) []templateRef {
	var refs []templateRef
	for pname, p := range rb.Pipelines {
		vars := map[string]string{"name": "", "id": ""}
		for _, in := range p.Inputs {
			vars[in] = ""
		}
		for k := range p.Defaults {
			vars[k] = ""
		}
		for _, ph := range p.Phases {
			if ph.Shell != "" {
				refs = append(refs, templateRef{
					source: fmt.Sprintf("pipeline %s phase %s", pname, ph.Name),
					text:   ph.Shell,
					vars:   vars,
				})
			}
		}
	}
	return refs
}

// firstUndeclaredVariable returns the name of the first {placeholder} in
// text that is not a key of vars, or "" if all placeholders are declared.
func firstUndeclaredVariable(text string, vars map[string]string) string {
	matches := variablePattern.FindAllStringSubmatch(text, -1)
	for _, m := range matches {
		name := m[1]
		if _, ok := vars[name]; !ok {
			return name
		}
	}
	return ""
}
