package models

// AccountStatus is the state of an account in the provisioning flow
type AccountStatus string

const (
	StatusPending         AccountStatus = "pending"
	StatusCreatingMailbox AccountStatus = "creating_mailbox"
	StatusSubmittingEmail AccountStatus = "submitting_email"
	StatusAwaitingCode    AccountStatus = "awaiting_code"
	StatusVerifying       AccountStatus = "verifying"
	StatusCompleting      AccountStatus = "completing"
	StatusSuccess         AccountStatus = "success"
	StatusFailed          AccountStatus = "failed"
	// StatusUpdating marks a refresh of an already successful account.
	// It behaves like StatusPending but tells observers this is not a
	// first provisioning.
	StatusUpdating AccountStatus = "updating"
)

// Phase groups statuses for filtering and stats
type Phase string

const (
	PhaseInProgress Phase = "in_progress"
	PhaseSuccess    Phase = "success"
	PhaseFailed     Phase = "failed"
)

// Phase classifies a status. Every call site that needs to know whether
// an account is done uses this instead of listing statuses.
func (s AccountStatus) Phase() Phase {
	switch s {
	case StatusSuccess:
		return PhaseSuccess
	case StatusFailed:
		return PhaseFailed
	default:
		return PhaseInProgress
	}
}

// Terminal reports whether no task transition can follow
func (s AccountStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// next holds the legal driver-initiated transitions. Stop (any non-terminal
// -> failed) and retry (failed -> pending) are external and not listed here.
var next = map[AccountStatus][]AccountStatus{
	StatusPending:         {StatusCreatingMailbox},
	StatusUpdating:        {StatusCreatingMailbox},
	StatusCreatingMailbox: {StatusSubmittingEmail},
	StatusSubmittingEmail: {StatusAwaitingCode},
	StatusAwaitingCode:    {StatusVerifying},
	StatusVerifying:       {StatusCompleting},
	StatusCompleting:      {StatusSuccess},
}

// CanAdvanceTo reports whether the owning task may move the account from s
// to target. Failed is reachable from any non-terminal state.
func (s AccountStatus) CanAdvanceTo(target AccountStatus) bool {
	if target == StatusFailed {
		return !s.Terminal()
	}
	for _, n := range next[s] {
		if n == target {
			return true
		}
	}
	return false
}

// Mode is the kind of work a task performs
type Mode string

const (
	ModeRegister Mode = "register"
	ModeRefresh  Mode = "refresh"
)
