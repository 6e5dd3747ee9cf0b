package metrics

import "time"

var _ Metrics = Noop{}

// Noop discards everything. Used in tests and when metrics are disabled.
type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) IncMatchesCreated()                     {}
func (Noop) IncMatchesSettled(string)               {}
func (Noop) IncOperationErrors(string, string)      {}
func (Noop) ObserveOperation(string, time.Duration) {}
func (Noop) AddEscrowed(int64)                      {}
func (Noop) AddPaidOut(int64)                       {}
func (Noop) AddDeposited(int64)                     {}
func (Noop) IncAuditRuns()                          {}
func (Noop) SetAuditViolations(int)                 {}
