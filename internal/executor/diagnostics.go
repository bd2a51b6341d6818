package executor

import "sync"

// Diagnostics are the counters the executor reports.
type Diagnostics struct {
	// TransactionsInQueue counts transactions queued but not yet started.
	TransactionsInQueue int

	// TotalTransactions counts attempts that finished, either way.
	TotalTransactions int
}

// DiagnosticUpdater applies counter updates. fn mutates d in place and
// must not block.
type DiagnosticUpdater interface {
	UpdateDiagnostics(fn func(d *Diagnostics))
}

// DiagnosticsRecorder is an in-memory DiagnosticUpdater.
type DiagnosticsRecorder struct {
	mu sync.Mutex
	d  Diagnostics
}

// UpdateDiagnostics implements DiagnosticUpdater.
func (r *DiagnosticsRecorder) UpdateDiagnostics(fn func(d *Diagnostics)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.d)
}

// Snapshot returns a copy of the current counters.
func (r *DiagnosticsRecorder) Snapshot() Diagnostics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d
}
