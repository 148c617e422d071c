package reducer

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/orbitinghail/sqlsync/internal/sqlengine"
)

// GuardedTx is the transactional handle a reducer actually receives: it
// forwards to the underlying sqlengine.Tx but Exec and Query reject any
// statement that names the reserved timelines table, keeping
// reducer-authored mutations from corrupting the engine's own bookkeeping
// (spec §9). QueryRow forwards its statement without this check.
type GuardedTx struct {
	tx *sqlengine.Tx
}

func (g *GuardedTx) checkReserved(query string) error {
	if strings.Contains(query, ReservedTimelinesTable) {
		return fmt.Errorf("statement references %s: %w", ReservedTimelinesTable, ErrReservedTable)
	}
	return nil
}

// Exec runs a statement with no result set.
func (g *GuardedTx) Exec(query string, args ...any) (sql.Result, error) {
	if err := g.checkReserved(query); err != nil {
		return nil, err
	}
	return g.tx.Exec(query, args...)
}

// Query runs a statement returning rows.
func (g *GuardedTx) Query(query string, args ...any) (*sql.Rows, error) {
	if err := g.checkReserved(query); err != nil {
		return nil, err
	}
	return g.tx.Query(query, args...)
}

// QueryRow runs a statement expected to return at most one row.
func (g *GuardedTx) QueryRow(query string, args ...any) *sql.Row {
	return g.tx.QueryRow(query, args...)
}
