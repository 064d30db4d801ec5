package shell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplaceEnvVars(t *testing.T) {
	t.Setenv("DANTECTL_TEST_VAR", "value")

	require.Equal(t, "value", ReplaceEnvVars("${DANTECTL_TEST_VAR}"))
	require.Equal(t, "value", ReplaceEnvVars("${DANTECTL_TEST_VAR:default}"))
	require.Equal(t, "default", ReplaceEnvVars("${DANTECTL_TEST_MISSING:default}"))
	require.Equal(t, "${DANTECTL_TEST_MISSING}", ReplaceEnvVars("${DANTECTL_TEST_MISSING}"))
	require.Equal(t, "plain text", ReplaceEnvVars("plain text"))
}
