package closing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outletpos/backend/internal/domain"
)

type State string

const (
	StateNoAttendance  State = "no_attendance"
	StateEditing       State = "editing"
	StateRejected      State = "rejected"
	StateNeedsApproval State = "needs_approval"
	StateConfirming    State = "confirming"
	StateCommitting    State = "committing"
	StateCommitted     State = "committed"
	StateFailed        State = "failed"
)

type Reason string

const (
	ReasonEarlyClosing     Reason = "early_closing"
	ReasonLargeDiscrepancy Reason = "large_discrepancy"
)

const DefaultLargeDiscrepancyCents int64 = 50000

type Form struct {
	ActualCashCents int64
	Notes           string
}

// Facts is everything the validation rules look at besides the form.
type Facts struct {
	HasAttendance         bool
	Role                  domain.Role
	Now                   time.Time
	ScheduledEnd          *time.Time
	ExpectedCents         int64
	LargeDiscrepancyCents int64
}

type Decision struct {
	State            State  `json:"state"`
	Reason           Reason `json:"reason,omitempty"`
	Message          string `json:"message,omitempty"`
	DiscrepancyCents int64  `json:"discrepancy_cents"`
	Err              error  `json:"-"`
}

// Evaluate applies the closing rules in order; the first failing rule wins.
func Evaluate(form Form, facts Facts) Decision {
	if !facts.HasAttendance {
		return Decision{State: StateNoAttendance, Message: ErrNoAttendance.Error(), Err: ErrNoAttendance}
	}
	if form.ActualCashCents < 0 {
		return Decision{State: StateRejected, Message: ErrNegativeCash.Error(), Err: ErrNegativeCash}
	}

	d := Decision{DiscrepancyCents: Discrepancy(form.ActualCashCents, facts.ExpectedCents)}
	if d.DiscrepancyCents != 0 && strings.TrimSpace(form.Notes) == "" {
		d.State = StateRejected
		d.Message = ErrReasonRequired.Error()
		d.Err = ErrReasonRequired
		return d
	}

	privileged := facts.Role.CanApprove()
	if !privileged && facts.ScheduledEnd != nil && facts.Now.Before(*facts.ScheduledEnd) {
		end := *facts.ScheduledEnd
		d.State = StateNeedsApproval
		d.Reason = ReasonEarlyClosing
		d.Message = fmt.Sprintf("early closing: shift ends at %s, now %s", end.Format("15:04"), facts.Now.In(end.Location()).Format("15:04"))
		d.Err = ErrApprovalPending
		return d
	}

	threshold := facts.LargeDiscrepancyCents
	if threshold <= 0 {
		threshold = DefaultLargeDiscrepancyCents
	}
	if !privileged && abs(d.DiscrepancyCents) > threshold {
		d.State = StateNeedsApproval
		d.Reason = ReasonLargeDiscrepancy
		d.Message = fmt.Sprintf("large discrepancy: %+d", d.DiscrepancyCents)
		d.Err = ErrApprovalPending
		return d
	}

	d.State = StateConfirming
	return d
}

type Approver struct {
	StaffID  string
	Username string
	Role     domain.Role
}

// Authorizer resolves a second staff member's credentials. Bad or inactive
// credentials are reported wrapped in ErrApprovalDenied; any other error
// means the check itself could not run.
type Authorizer interface {
	Authorize(ctx context.Context, username, password string) (Approver, error)
}

type Approval struct {
	ApprovedBy string
	Reason     Reason
}

// CommitFunc persists the closing. It runs at most once at a time per key.
type CommitFunc func(ctx context.Context, form Form, approval Approval) error

// Machine is one closing session. It is not safe for concurrent use; the
// commit guard it shares is.
type Machine struct {
	state    State
	form     Form
	facts    Facts
	decision Decision
	approval Approval

	key    string
	guard  *CommitGuard
	auth   Authorizer
	commit CommitFunc
}

func NewMachine(facts Facts, key string, guard *CommitGuard, auth Authorizer, commit CommitFunc) *Machine {
	state := StateEditing
	if !facts.HasAttendance {
		state = StateNoAttendance
	}
	return &Machine{
		state:  state,
		facts:  facts,
		key:    key,
		guard:  guard,
		auth:   auth,
		commit: commit,
	}
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) Decision() Decision {
	return m.decision
}

// Approval is the sign-off accepted for the current form, if any.
func (m *Machine) Approval() Approval {
	return m.approval
}

// Submit validates the form and moves to rejected, needs_approval or
// confirming.
func (m *Machine) Submit(form Form) Decision {
	switch m.state {
	case StateNoAttendance:
		m.decision = Evaluate(form, m.facts)
		return m.decision
	case StateCommitting, StateCommitted:
		return Decision{State: m.state, Message: ErrInvalidState.Error(), Err: ErrInvalidState}
	}

	m.form = form
	m.approval = Approval{}
	m.decision = Evaluate(form, m.facts)
	m.state = m.decision.State
	return m.decision
}

// Approve checks the approver and, on success, commits straight away
// without the confirm step. Failures leave the machine waiting for another
// attempt.
func (m *Machine) Approve(ctx context.Context, username, password string) error {
	if m.state != StateNeedsApproval {
		return ErrInvalidState
	}
	approver, err := m.auth.Authorize(ctx, username, password)
	if errors.Is(err, ErrApprovalDenied) {
		return err
	}
	if err != nil {
		return fmt.Errorf("authorize approver: %w", err)
	}
	if !approver.Role.CanApprove() {
		return ErrApprovalDenied
	}
	m.approval = Approval{ApprovedBy: approver.Username, Reason: m.decision.Reason}
	return m.run(ctx)
}

func (m *Machine) Confirm(ctx context.Context) error {
	if m.state != StateConfirming {
		return ErrInvalidState
	}
	return m.run(ctx)
}

// Abandon drops the form. Nothing has been written before a commit starts.
func (m *Machine) Abandon() error {
	switch m.state {
	case StateEditing, StateRejected, StateNeedsApproval, StateConfirming:
		m.state = StateEditing
		m.form = Form{}
		m.approval = Approval{}
		m.decision = Decision{}
		return nil
	default:
		return ErrInvalidState
	}
}

func (m *Machine) run(ctx context.Context) error {
	release, ok := m.guard.TryAcquire(m.key)
	if !ok {
		return ErrCommitInFlight
	}
	defer release()

	m.state = StateCommitting
	if err := m.commit(ctx, m.form, m.approval); err != nil {
		// Same inputs can be resubmitted; an earlier approval still holds.
		m.state = StateConfirming
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}
	m.state = StateCommitted
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
