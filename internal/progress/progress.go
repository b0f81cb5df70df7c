// Package progress implements the cooperative progress/cancellation contract.
// Long-running operations invoke the callback at natural iteration boundaries
// (one row, one tile, one layer); a false return cancels the operation.
package progress

// Status describes what a progress report means.
type Status int

const (
	Continue Status = iota // work in progress
	Finished               // operation completed
	Warning                // non-fatal condition, message explains
	Canceled               // operation stopped on request
)

// Func receives (status, fractional completion 0..1, message) and returns
// false to request cancellation.
type Func func(status Status, complete float64, message string) bool

// Progress wraps an optional callback. The zero value never cancels.
type Progress struct {
	fn Func
}

// New returns a Progress reporting through fn. fn may be nil.
func New(fn Func) Progress {
	return Progress{fn: fn}
}

// OnProgress reports progress and returns false if the caller asked to stop.
func (p Progress) OnProgress(status Status, complete float64, message string) bool {
	if p.fn == nil {
		return true
	}
	return p.fn(status, complete, message)
}
