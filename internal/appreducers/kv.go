// Package appreducers holds the reducer set shared by the sqlsync CLI and
// the coordinator daemon, so a coordinator can deterministically replay
// mutations submitted by any sqlsync client without the two binaries
// drifting out of sync on tag definitions.
package appreducers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orbitinghail/sqlsync/internal/reducer"
)

// Builtin returns the default key/value reducer set: one table, enough to
// exercise mutate/query/sync end to end without requiring an application to
// bring its own reducers.
func Builtin() *reducer.Registry {
	reg := reducer.NewRegistry()
	reg.Register("kv.set", kvSet)
	return reg
}

func kvSet(ctx context.Context, tx *reducer.GuardedTx, args []byte) error {
	var kv struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(args, &kv); err != nil {
		return fmt.Errorf("kv.set: %w", err)
	}
	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return err
	}
	_, err := tx.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		kv.Key, kv.Value,
	)
	return err
}
