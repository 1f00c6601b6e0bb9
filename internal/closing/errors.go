package closing

import "errors"

var (
	ErrNoAttendance    = errors.New("no attendance recorded for this shift")
	ErrNegativeCash    = errors.New("cash cannot be negative")
	ErrReasonRequired  = errors.New("reason required for discrepancy")
	ErrApprovalDenied  = errors.New("approver is not an owner or manager, or credentials are invalid")
	ErrCommitInFlight  = errors.New("closing is already being saved")
	ErrCommitFailed    = errors.New("failed to save closing")
	ErrAlreadyClosed   = errors.New("shift already closed")
	ErrInvalidState    = errors.New("action not allowed in current closing state")
	ErrApprovalPending = errors.New("closing requires manager approval")
)
