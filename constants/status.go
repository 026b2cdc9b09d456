package constants

// RunStatus is the canonical status for an ingestion run.
type RunStatus string

// Stable values (store these exact strings).
const (
	RunStatusRunning        RunStatus = "RUNNING"         // units in flight
	RunStatusSucceeded      RunStatus = "SUCCEEDED"       // every unit persisted
	RunStatusPartialSuccess RunStatus = "PARTIAL_SUCCESS" // at least one unit persisted, some failed
	RunStatusFailed         RunStatus = "FAILED"          // no unit persisted
)
