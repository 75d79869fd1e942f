package types

// Status is the aggregate outcome of a batch or multi-part operation.
type Status int

const (
	// StatusOK means every part succeeded.
	StatusOK Status = iota
	// StatusPartial means some parts failed and others succeeded
	// (S_FALSE-equivalent).
	StatusPartial
	// StatusFailed means every part failed, or the operation as a whole did.
	StatusFailed
)

// String returns "ok", "partial" or "failed".
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusPartial:
		return "partial"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StatusOf folds per-item errors: nil slice or all-nil is OK, every item
// failing is failed, anything in between is partial.
func StatusOf(errs []error) Status {
	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusOK
	case failed == len(errs):
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Succeeded reports whether s is OK or partial, the outcomes where at
// least part of the work produced a result.
func (s Status) Succeeded() bool { return s == StatusOK || s == StatusPartial }
