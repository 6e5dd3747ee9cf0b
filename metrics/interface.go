package metrics

import "time"

// Metrics is what the ledger, the HTTP layer and the auditor report to.
// It keeps the callers independent of Prometheus.
type Metrics interface {
	IncMatchesCreated()
	IncMatchesSettled(outcome string)
	IncOperationErrors(operation, kind string)
	ObserveOperation(operation string, d time.Duration)
	AddEscrowed(cents int64)
	AddPaidOut(cents int64)
	AddDeposited(cents int64)
	IncAuditRuns()
	SetAuditViolations(n int)
}
