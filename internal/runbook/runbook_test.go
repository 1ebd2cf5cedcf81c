package runbook

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[command.hello]
run = "echo hello"

[pipeline.test]
[[pipeline.test.phase]]
name = "init"
run = "echo {name}"
next = "plan"

[[pipeline.test.phase]]
name = "plan"
run = "echo planning"
next = "done"

[agent.coder]
run = "claude"
prompt = "implement {name}"
on_idle = "nudge"

[[agent.coder.on_error]]
match = "rate_limited"
action = "recover"
message = "retry"
`

func TestLoadValidRunbook(t *testing.T) {
	rb, err := Load(sampleTOML)
	require.NoError(t, err)
	require.Contains(t, rb.Pipelines, "test")
	require.Contains(t, rb.Agents, "coder")

	p := rb.Pipelines["test"]
	require.Len(t, p.Phases, 2)
	require.Equal(t, "plan", p.Phases[0].Next)
}

func TestOnIdleDefaultsWhenAbsent(t *testing.T) {
	rb, err := Load(`
[agent.plain]
run = "x"
`)
	require.NoError(t, err)
	a := rb.Agents["plain"]
	require.Equal(t, ActionNudge, a.OnIdle.Action)
	require.Equal(t, ActionEscalate, a.OnExit.Action)
	require.Len(t, a.OnError, 1)
	require.Equal(t, ActionEscalate, a.OnError[0].Action.Action)
}

func TestOnErrorMatchRuleOrderingFirstWins(t *testing.T) {
	rb, err := Load(sampleTOML)
	require.NoError(t, err)
	a := rb.Agents["coder"]
	require.Equal(t, "rate_limited", a.OnError[0].Match)
	require.Equal(t, ActionRecover, a.OnError[0].Action.Action)
}

func TestValidateRejectsUnknownNextPhase(t *testing.T) {
	_, err := Load(`
[pipeline.bad]
[[pipeline.bad.phase]]
name = "init"
next = "nonexistent"
`)
	require.Error(t, err)
}

func TestValidateRejectsUnknownAgentReference(t *testing.T) {
	_, err := Load(`
[pipeline.bad]
[[pipeline.bad.phase]]
name = "init"
agent = "ghost"
`)
	require.Error(t, err)
}

func TestValidateAllowsBuiltinTerminalPhases(t *testing.T) {
	_, err := Load(`
[pipeline.ok]
[[pipeline.ok.phase]]
name = "init"
next = "done"
on_fail = "failed"
`)
	require.NoError(t, err)
}

func TestValidateRejectsRequiredInputMissingDefault(t *testing.T) {
	_, err := Load(`
[pipeline.bad]
inputs = ["ticket"]

[[pipeline.bad.phase]]
name = "init"
`)
	require.Error(t, err)
}

func TestValidateRejectsDefaultForUndeclaredInput(t *testing.T) {
	_, err := Load(`
[pipeline.bad]
inputs = ["ticket"]
defaults = { ticket = "none", extra = "huh" }

[[pipeline.bad.phase]]
name = "init"
`)
	require.Error(t, err)
}

func TestValidateAllowsInputsWithDefaults(t *testing.T) {
	rb, err := Load(`
[pipeline.ok]
inputs = ["ticket"]
defaults = { ticket = "none" }

[[pipeline.ok.phase]]
name = "init"
run = "echo {ticket}"
`)
	require.NoError(t, err)
	require.Equal(t, []string{"ticket"}, rb.Pipelines["ok"].Inputs)
}

func TestResolveInputsFillsMissingFromDefaults(t *testing.T) {
	rb, err := Load(`
[pipeline.ok]
inputs = ["ticket"]
defaults = { ticket = "none" }

[[pipeline.ok.phase]]
name = "init"
`)
	require.NoError(t, err)

	p := rb.Pipelines["ok"]
	got := p.ResolveInputs(map[string]string{})
	require.Equal(t, "none", got["ticket"])

	got = p.ResolveInputs(map[string]string{"ticket": "JIRA-1"})
	require.Equal(t, "JIRA-1", got["ticket"])
}

func TestAgentTimeoutParsed(t *testing.T) {
	rb, err := Load(`
[agent.coder]
run = "claude"
prompt = "go"
timeout = "15m"
`)
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, rb.Agents["coder"].Timeout)
}

func TestAgentTimeoutRejectsUnparsableDuration(t *testing.T) {
	_, err := Load(`
[agent.coder]
run = "claude"
prompt = "go"
timeout = "soon"
`)
	require.Error(t, err)
}

func TestTemplateEnvExpansionPrecedesVariableSubstitution(t *testing.T) {
	t.Setenv("OJ_TEST_VAR", "")
	got := Render("${OJ_TEST_VAR:-{name}}", map[string]string{"name": "world"})
	require.Equal(t, "world", got)
}

func TestTemplateLeavesUnknownVariableUnchanged(t *testing.T) {
	got := Interpolate("hello {unknown}", map[string]string{"name": "world"})
	require.Equal(t, "hello {unknown}", got)
}

func TestTemplateEnvDefaultUsedWhenUnset(t *testing.T) {
	require.NoError(t, os.Unsetenv("OJ_TEST_UNSET_VAR"))
	got := ExpandEnv("${OJ_TEST_UNSET_VAR:-fallback}")
	require.Equal(t, "fallback", got)
}

func TestTemplateEnvValueUsedWhenSet(t *testing.T) {
	t.Setenv("OJ_TEST_SET_VAR", "actual")
	got := ExpandEnv("${OJ_TEST_SET_VAR:-fallback}")
	require.Equal(t, "actual", got)
}
