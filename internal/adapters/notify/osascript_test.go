package notify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildScriptIncludesTitleAndMessage(t *testing.T) {
	n := NewOsascriptNotifier("oj")
	script := n.buildScript("Pipeline done", "build completed")
	require.Contains(t, script, "Pipeline done")
	require.Contains(t, script, "build completed")
	require.Contains(t, script, "subtitle \"oj\"")
}

func TestEscapeApplescriptHandlesSpecialChars(t *testing.T) {
	require.Equal(t, "hello", escapeApplescript("hello"))
	require.Equal(t, `say \"hello\"`, escapeApplescript(`say "hello"`))
	require.Equal(t, `path\\to\\file`, escapeApplescript(`path\to\file`))
}
