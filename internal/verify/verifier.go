// Package verify confirms that a gateway order has settled.
//
// A verification polls the backend until the order is paid, declined, or the retry
// budget runs out. At most one verification runs per order and caller; starting another
// for the same caller cancels the first.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/backend"
	"github.com/tmplstore/billing/internal/domain"
	"github.com/tmplstore/billing/internal/metrics"
	"github.com/tmplstore/billing/internal/session"
	"github.com/tmplstore/billing/pkg/payment"
)

// Defaults for the retry policy: one attempt every 3s for about two minutes.
const (
	DefaultRetryDelay = 3 * time.Second
	DefaultMaxRetries = 40
)

// Backend is the part of the backend client the verifier uses.
type Backend interface {
	VerifyPayment(ctx context.Context, token, orderID string) (*backend.VerifyResponse, error)
	GetCurrentPlan(ctx context.Context, token string) (*backend.CurrentPlan, error)
}

// AuditRecord is the terminal outcome of one verification.
type AuditRecord struct {
	OrderID     string
	State       Kind
	Reason      string
	Message     string
	Attempts    int
	PlanName    string
	AmountMinor int64
	Currency    domain.Currency
	CompletedAt time.Time
}

// AuditStore persists terminal outcomes. Recording the same order twice must be a no-op.
type AuditStore interface {
	RecordVerification(ctx context.Context, rec AuditRecord) error
}

// Options tunes the retry policy.
type Options struct {
	RetryDelay time.Duration
	MaxRetries int
}

// Verifier starts verifications and keeps the registry of active ones.
type Verifier struct {
	backend Backend
	opts    Options
	audit   AuditStore
	metrics *metrics.Metrics
	log     logrus.FieldLogger

	mu     sync.Mutex
	active map[registryKey]*Verification
}

// registryKey scopes a verification to the credential that started it, so one
// caller can never cancel another caller's verification of the same order.
type registryKey struct {
	owner   string
	orderID string
}

func ownerOf(sess session.Session) string {
	token := sess.Credential()
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:12])
}

// NewVerifier creates a Verifier. audit and m may be nil.
func NewVerifier(b Backend, opts Options, audit AuditStore, m *metrics.Metrics, log logrus.FieldLogger) *Verifier {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	return &Verifier{
		backend: b,
		opts:    opts,
		audit:   audit,
		metrics: m,
		log:     log.WithField("component", "verifier"),
		active:  make(map[registryKey]*Verification),
	}
}

// Verification is a running verification of one order.
type Verification struct {
	OrderID string

	states chan State
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	final State
}

// States streams every state in order. It is closed when the verification ends.
func (v *Verification) States() <-chan State {
	return v.states
}

// Cancel stops the verification. No state is emitted after Cancel returns control to the loop.
func (v *Verification) Cancel() {
	v.cancel()
}

// Done is closed when the verification goroutine has exited.
func (v *Verification) Done() <-chan struct{} {
	return v.done
}

// Final returns the last state reached. It is only meaningful after Done.
func (v *Verification) Final() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.final
}

func (v *Verification) emit(ctx context.Context, s State) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case v.states <- s:
		v.mu.Lock()
		v.final = s
		v.mu.Unlock()
		return true
	case <-ctx.Done():
		return false
	}
}

// Start begins verifying orderID for the caller behind sess. A verification already
// running for the same caller and order is cancelled and waited for first; other
// callers' verifications are left alone.
func (vr *Verifier) Start(ctx context.Context, orderID string, sess session.Session) *Verification {
	key := registryKey{owner: ownerOf(sess), orderID: orderID}

	ctx, cancel := context.WithCancel(ctx)
	v := &Verification{
		OrderID: orderID,
		states:  make(chan State, 4),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	vr.mu.Lock()
	prev := vr.active[key]
	vr.active[key] = v
	vr.mu.Unlock()
	vr.metrics.VerifyActive(1)

	// Only this key waits. A third Start racing with this one cancels v, whose
	// goroutine then exits as soon as it is launched.
	if prev != nil {
		vr.log.WithField("order_id", orderID).Debug("superseding active verification")
		prev.Cancel()
		<-prev.Done()
	}

	go func() {
		defer func() {
			cancel()
			vr.mu.Lock()
			if vr.active[key] == v {
				delete(vr.active, key)
			}
			vr.mu.Unlock()
			vr.metrics.VerifyActive(-1)
			close(v.states)
			close(v.done)
		}()
		vr.run(ctx, v, sess)
	}()
	return v
}

// Verify runs a verification to completion, calling onState for every state, and
// returns the terminal state. The error is the terminal error, or ctx.Err() when cancelled.
func (vr *Verifier) Verify(ctx context.Context, orderID string, sess session.Session, onState func(State)) (State, error) {
	v := vr.Start(ctx, orderID, sess)
	for s := range v.States() {
		if onState != nil {
			onState(s)
		}
	}
	final := v.Final()
	if !final.Kind.Terminal() {
		if err := ctx.Err(); err != nil {
			return final, err
		}
		return final, context.Canceled
	}
	return final, final.Err()
}

// Active reports whether orderID is currently being verified by any caller.
func (vr *Verifier) Active(orderID string) bool {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	for k := range vr.active {
		if k.orderID == orderID {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of running verifications.
func (vr *Verifier) ActiveCount() int {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	return len(vr.active)
}

func (vr *Verifier) policy() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(vr.opts.RetryDelay), uint64(vr.opts.MaxRetries))
}

func (vr *Verifier) run(ctx context.Context, v *Verification, sess session.Session) {
	log := vr.log.WithField("order_id", v.OrderID)
	policy := vr.policy()

	if !v.emit(ctx, State{Kind: Loading, OrderID: v.OrderID, At: time.Now()}) {
		return
	}

	for attempt := 1; ; attempt++ {
		s, retry := vr.attempt(ctx, log.WithField("attempt", attempt), v.OrderID, attempt, sess)
		if ctx.Err() != nil {
			return
		}
		if !retry {
			vr.finish(ctx, log, v, s)
			return
		}
		vr.metrics.VerifyAttempt(string(s.Kind))
		if !v.emit(ctx, s) {
			return
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			log.WithField("attempts", attempt).Warn("verification retry budget exhausted")
			vr.finish(ctx, log, v, errorState(v.OrderID, attempt, domain.VerificationTimeout()))
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// attempt issues one verify call. retry is true when the order is not settled yet.
func (vr *Verifier) attempt(ctx context.Context, log logrus.FieldLogger, orderID string, attempt int, sess session.Session) (State, bool) {
	token := sess.Credential()
	if token == "" {
		s := errorState(orderID, attempt, domain.SessionExpired())
		s.SessionExpired = true
		return s, false
	}

	resp, err := vr.backend.VerifyPayment(ctx, token, orderID)
	if err != nil {
		if ctx.Err() != nil {
			return State{}, false
		}
		if se, ok := backend.AsStatusError(err); ok {
			if se.Unauthorized() {
				sess.ClearCredential()
				vr.metrics.SessionExpired("verify")
				log.Warn("credential rejected during verification")
				s := errorState(orderID, attempt, domain.SessionExpired())
				s.SessionExpired = true
				return s, false
			}
			log.WithField("status", se.Code).Info("verification not ready")
			return pendingState(orderID, attempt, "payment is still being processed"), true
		}
		log.WithError(err).Warn("network error during verification")
		s := pendingState(orderID, attempt, "having trouble reaching the payment service, retrying")
		s.NetworkError = true
		return s, true
	}

	if resp.Success {
		details := &Details{
			PlanName:    resp.PlanName,
			AmountMinor: domain.MajorToMinor(resp.OrderAmount),
		}
		if c, err := domain.ParseCycle(resp.BillingCycle); err == nil {
			details.Cycle = c
		}
		if c, err := domain.ParseCurrency(resp.OrderCurrency); err == nil {
			details.Currency = c
		}
		if resp.User != nil {
			details.UserPlan = resp.User.Plan
		}
		vr.reconcile(ctx, log, token, resp, details)
		log.WithField("plan", details.PlanName).Info("payment verified")
		return State{Kind: Success, OrderID: orderID, Attempt: attempt, Details: details, At: time.Now()}, false
	}

	if payment.InFlight(resp.OrderStatus) {
		log.WithField("order_status", resp.OrderStatus).Debug("order still in flight")
		return pendingState(orderID, attempt, "payment is still being processed"), true
	}

	log.WithFields(logrus.Fields{"order_status": resp.OrderStatus, "message": resp.Message}).Warn("payment verification failed")
	return errorState(orderID, attempt, domain.VerificationFailed(resp.Message)), false
}

// reconcile re-reads the user's plan once when the verify response still shows the
// user below the tier they just paid for. A failed read leaves the details as they are.
func (vr *Verifier) reconcile(ctx context.Context, log logrus.FieldLogger, token string, resp *backend.VerifyResponse, details *Details) {
	if resp.User == nil {
		return
	}
	ordered, ok := tierOf(resp.PlanName)
	if !ok {
		return
	}
	current, ok := tierOf(resp.User.Plan)
	if !ok {
		current, ok = tierOf(resp.User.PlanID)
	}
	if !ok || current.AtLeast(ordered) {
		return
	}

	cp, err := vr.backend.GetCurrentPlan(ctx, token)
	if err != nil {
		log.WithError(err).Warn("current plan read failed, keeping verify response")
		return
	}
	details.UserPlan = cp.Plan
	details.Reconciled = true
}

// tierOf reads a tier out of a display name or plan id such as "Pro", "Pro Plan",
// "business-annual" or "plan_enterprise". The first word naming a tier wins.
func tierOf(name string) (domain.Tier, bool) {
	if t, ok := domain.ParseTier(name); ok {
		return t, true
	}
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.' || r == '/'
	})
	for _, w := range words {
		if t, ok := domain.ParseTier(w); ok {
			return t, true
		}
	}
	return "", false
}

func (vr *Verifier) finish(ctx context.Context, log logrus.FieldLogger, v *Verification, s State) {
	if !v.emit(ctx, s) {
		return
	}
	reason := s.reason()
	vr.metrics.VerifyTerminal(string(s.Kind), reason)
	if vr.audit == nil {
		return
	}

	rec := AuditRecord{
		OrderID:     s.OrderID,
		State:       s.Kind,
		Reason:      reason,
		Message:     s.Message,
		Attempts:    s.Attempt,
		CompletedAt: s.At,
	}
	if s.Details != nil {
		rec.PlanName = s.Details.PlanName
		rec.AmountMinor = s.Details.AmountMinor
		rec.Currency = s.Details.Currency
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := vr.audit.RecordVerification(actx, rec); err != nil {
		log.WithError(err).Error("failed to record verification outcome")
	}
}

func pendingState(orderID string, attempt int, msg string) State {
	return State{Kind: Pending, OrderID: orderID, Attempt: attempt, Message: msg, At: time.Now()}
}

func errorState(orderID string, attempt int, err *domain.AppError) State {
	return State{Kind: Error, OrderID: orderID, Attempt: attempt, Message: err.Message, At: time.Now(), err: err}
}

func isTimeout(err error) bool {
	return errors.Is(err, domain.ErrVerificationTimeout)
}
