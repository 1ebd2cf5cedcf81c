package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixedNameAddsPrefixOnce(t *testing.T) {
	a := NewTmuxAdapter("oj-")
	require.Equal(t, "oj-test", a.prefixedName("test"))
	require.Equal(t, "oj-test", a.prefixedName("oj-test"))
}
