package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitinghail/sqlsync/internal/reducer"
	"github.com/orbitinghail/sqlsync/internal/sqlengine"
)

// errReducerFailed lets the "FailAlways" reducer produce a recognizable
// failure message for ExpectErr assertions.
var errReducerFailed = errors.New("boom")

// taskRegistry builds the reducer set every test scenario in this file
// shares: a minimal single-table task list, enough to exercise mutate,
// query, and conflict/rebase without any scenario needing its own schema.
func taskRegistry() *reducer.Registry {
	reg := reducer.NewRegistry()

	reg.Register("InitSchema", func(ctx context.Context, tx *reducer.GuardedTx, args []byte) error {
		_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			done INTEGER NOT NULL DEFAULT 0
		)`)
		return err
	})

	reg.Register("CreateTask", func(ctx context.Context, tx *reducer.GuardedTx, args []byte) error {
		var a struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return fmt.Errorf("CreateTask: %w", err)
		}
		_, err := tx.Exec(`INSERT INTO tasks (id, title) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET title = excluded.title`, a.ID, a.Title)
		return err
	})

	reg.Register("ToggleCompleted", func(ctx context.Context, tx *reducer.GuardedTx, args []byte) error {
		var a struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return fmt.Errorf("ToggleCompleted: %w", err)
		}
		_, err := tx.Exec(`UPDATE tasks SET done = 1 - done WHERE id = ?`, a.ID)
		return err
	})

	reg.Register("FailAlways", func(ctx context.Context, tx *reducer.GuardedTx, args []byte) error {
		return errReducerFailed
	})

	return reg
}

func engineFactory(t *testing.T) EngineFactory {
	dir := t.TempDir()
	return func(name string) (*sqlengine.Engine, error) {
		return sqlengine.Open(filepath.Join(dir, name+".db"))
	}
}

// run loads testdata/scenarios/name.yaml and executes it against a fresh
// taskRegistry, failing the test immediately on any load or run error.
func run(t *testing.T, name string) *Result {
	t.Helper()
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)

	result, err := RunScenario(sc, taskRegistry(), engineFactory(t))
	require.NoError(t, err)
	return result
}

// assertPass fails the test with every recorded assertion failure if the
// scenario did not pass outright.
func assertPass(t *testing.T, result *Result) {
	t.Helper()
	if !result.Pass {
		t.Fatalf("scenario failed:\n%s", joinErrors(result.Errors))
	}
}

func joinErrors(errs []string) string {
	out := ""
	for _, e := range errs {
		out += "  - " + e + "\n"
	}
	return out
}

func TestScenarioSchemaInit(t *testing.T) {
	assertPass(t, run(t, "schema_init"))
}

func TestScenarioLocalThenSync(t *testing.T) {
	assertPass(t, run(t, "local_then_sync"))
}

func TestScenarioTwoClientsConcurrent(t *testing.T) {
	assertPass(t, run(t, "two_clients_concurrent"))
}

func TestScenarioToggleOffline(t *testing.T) {
	assertPass(t, run(t, "toggle_offline"))
}

func TestScenarioReducerError(t *testing.T) {
	assertPass(t, run(t, "reducer_error"))
}

func TestScenarioReconnectIdempotent(t *testing.T) {
	result := run(t, "reconnect_idempotent")
	assertPass(t, result)

	syncEvents := make([]TraceEvent, 0, 3)
	for _, e := range result.Trace {
		if e.Action == "sync" {
			syncEvents = append(syncEvents, e)
		}
	}
	require.Len(t, syncEvents, 3)
	require.Equal(t, true, syncEvents[0].Detail["committed"], "first sync carries InitSchema")
	require.Equal(t, true, syncEvents[1].Detail["committed"], "second sync carries CreateTask")
	require.Equal(t, false, syncEvents[2].Detail["committed"], "third sync has nothing new pending")
}
