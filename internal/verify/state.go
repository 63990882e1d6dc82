package verify

import (
	"time"

	"github.com/tmplstore/billing/internal/domain"
)

// Kind is the phase a verification is in.
type Kind string

const (
	Loading Kind = "loading"
	Pending Kind = "pending"
	Success Kind = "success"
	Error   Kind = "error"
)

// Terminal reports whether no further state follows.
func (k Kind) Terminal() bool {
	return k == Success || k == Error
}

// Details describes a settled payment.
type Details struct {
	PlanName    string              `json:"planName,omitempty"`
	Cycle       domain.BillingCycle `json:"billingCycle,omitempty"`
	Currency    domain.Currency     `json:"currency,omitempty"`
	AmountMinor int64               `json:"amountMinor"`
	UserPlan    string              `json:"userPlan,omitempty"`
	Reconciled  bool                `json:"reconciled,omitempty"`
}

// Amount returns the settled amount as Money.
func (d *Details) Amount() domain.Money {
	return domain.Money{AmountMinor: d.AmountMinor, Currency: d.Currency}
}

// State is one observation of a verification. It is what the websocket pushes.
type State struct {
	Kind           Kind      `json:"state"`
	OrderID        string    `json:"orderId"`
	Attempt        int       `json:"attempt"`
	Message        string    `json:"message,omitempty"`
	SessionExpired bool      `json:"sessionExpired,omitempty"`
	NetworkError   bool      `json:"networkError,omitempty"`
	Details        *Details  `json:"details,omitempty"`
	At             time.Time `json:"at"`

	err error
}

// Err returns the error of an Error state, and nil otherwise.
func (s State) Err() error {
	return s.err
}

// reason labels a terminal state for metrics and the audit trail.
func (s State) reason() string {
	switch {
	case s.Kind == Success:
		return "settled"
	case s.SessionExpired:
		return "session_expired"
	case s.err != nil && isTimeout(s.err):
		return "timeout"
	default:
		return "declined"
	}
}
