package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.yaml")
	yaml := `
name: sample
description: a tiny local-then-sync scenario
clients: [a]
steps:
  - client: a
    mutate: { tag: InitSchema }
  - client: a
    query: "SELECT id FROM tasks"
    expect_rows: 0
  - sync: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	require.Equal(t, "sample", sc.Name)
	require.Equal(t, []string{"a"}, sc.Clients)
	require.Len(t, sc.Steps, 3)
	require.Equal(t, "InitSchema", sc.Steps[0].Mutate.Tag)
	require.Equal(t, 0, *sc.Steps[1].ExpectRows)
	require.True(t, sc.Steps[2].Sync)
}

func TestLoadScenarioMissingName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clients: [a]\nsteps: []\n"), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
}
