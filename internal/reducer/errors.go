package reducer

import "errors"

// Error kinds from spec §7, surfaced to the application rather than
// blocking the pipeline.
var (
	ErrReducerFailed  = errors.New("reducer: mutation failed")
	ErrReducerTimeout = errors.New("reducer: exceeded step/time budget")
	ErrUnknownTag     = errors.New("reducer: no reducer registered for tag")
	ErrReservedTable  = errors.New("reducer: statement touches a reserved engine table")
)

// ReservedTimelinesTable is spec §9's reserved cross-journal-reference
// table: "__sqlsync_timelines(timeline_id BLOB, lsn INTEGER)". Ordinary
// reducers must never write to it directly; only the coordinator's
// mutations-applied bookkeeping (internal/coordinator) does, in the same
// transaction as the reducer's own writes.
const ReservedTimelinesTable = "__sqlsync_timelines"
