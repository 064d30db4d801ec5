package api

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMergeYAML(t *testing.T) {
	base := `api:
  listen: ":1984"
dante:
  interval: 30s
  workers: 8
`
	patch := `dante:
  workers: 2
log:
  level: trace
`

	path := filepath.Join(t.TempDir(), "dantectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(base), 0o644))

	out, err := mergeYAML(path, []byte(patch))
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, yaml.Unmarshal(out, &cfg))

	require.Equal(t, ":1984", cfg["api"].(map[string]any)["listen"])
	require.Equal(t, "30s", cfg["dante"].(map[string]any)["interval"])
	require.Equal(t, 2, cfg["dante"].(map[string]any)["workers"])
	require.Equal(t, "trace", cfg["log"].(map[string]any)["level"])
}

func TestMergeReplacesScalarWithMap(t *testing.T) {
	dst := map[string]any{"dante": "off"}
	src := map[string]any{"dante": map[string]any{"workers": 2}}

	out := merge(dst, src)
	require.Equal(t, map[string]any{"workers": 2}, out["dante"])
}

func TestMergeEmptyBase(t *testing.T) {
	src := map[string]any{"log": map[string]any{"level": "debug"}}
	require.Equal(t, src, merge(nil, src))
}
