package constants

// RunStatus is the canonical status for rows in the session runs table.
type RunStatus string

// Stable values (store these exact strings in the session store).
const (
	RunStatusQueued  RunStatus = "QUEUED"  // accepted, waiting for a worker
	RunStatusRunning RunStatus = "RUNNING" // documents being processed
	RunStatusDone    RunStatus = "DONE"    // every document has a row
	RunStatusFailed  RunStatus = "FAILED"  // aborted (invalid patterns, cancelled)
)
