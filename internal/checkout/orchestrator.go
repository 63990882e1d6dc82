// Package checkout turns a plan selection into either an immediate activation or a
// gateway order the user is redirected to.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/backend"
	"github.com/tmplstore/billing/internal/domain"
	"github.com/tmplstore/billing/internal/metrics"
	"github.com/tmplstore/billing/internal/session"
	"github.com/tmplstore/billing/pkg/payment"
)

// PaymentCreator opens gateway orders on the backend.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, token, idempotencyKey string, body backend.CreatePaymentRequest) (*backend.CreatePaymentResponse, error)
}

// PlanSource resolves a plan id.
type PlanSource interface {
	Get(ctx context.Context, planID string) (*domain.Plan, error)
}

// SubmitRequest is a resolved plan selection.
type SubmitRequest struct {
	Plan     *domain.Plan        `validate:"required"`
	Cycle    domain.BillingCycle `validate:"required,oneof=monthly annual"`
	Currency domain.Currency     `validate:"required,oneof=INR USD"`
}

// Result is either Activated or Redirect.
type Result interface {
	isResult()
}

// Activated means the plan took effect without a payment.
type Activated struct {
	PlanID string `json:"planId"`
}

// Redirect means the user must complete payment at PaymentLink.
type Redirect struct {
	Order       domain.Order `json:"order"`
	PaymentLink string       `json:"paymentLink"`
}

func (Activated) isResult() {}
func (Redirect) isResult()  {}

// Orchestrator runs checkouts.
type Orchestrator struct {
	payments PaymentCreator
	plans    PlanSource
	validate *validator.Validate
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

func NewOrchestrator(payments PaymentCreator, plans PlanSource, m *metrics.Metrics, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		payments: payments,
		plans:    plans,
		validate: validator.New(),
		metrics:  m,
		log:      log.WithField("component", "checkout"),
	}
}

// Checkout validates a raw request, resolves the plan and submits it.
func (o *Orchestrator) Checkout(ctx context.Context, req domain.CheckoutRequest, sess session.Session) (Result, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	cycle, err := domain.ParseCycle(req.Cycle)
	if err != nil {
		return nil, err
	}
	currency, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if o.plans == nil {
		return nil, domain.ErrInternal("no plan source configured", nil)
	}
	plan, err := o.plans.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	return o.Submit(ctx, SubmitRequest{Plan: plan, Cycle: cycle, Currency: currency}, sess)
}

// Submit starts a purchase. Free plans activate without touching the backend; paid plans
// open a gateway order and come back as a Redirect.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest, sess session.Session) (Result, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	// 1. Free tier never reaches the gateway
	if req.Plan.IsFree() {
		o.metrics.Checkout("activated")
		return Activated{PlanID: req.Plan.ID}, nil
	}

	// 2. A paid checkout needs a credential
	token := sess.Credential()
	if token == "" {
		o.metrics.Checkout("session_expired")
		return nil, domain.SessionExpired()
	}

	// 3. Open the order
	idemKey := uuid.New().String()
	log := o.log.WithFields(logrus.Fields{
		"plan_id":         req.Plan.ID,
		"cycle":           req.Cycle,
		"currency":        req.Currency,
		"idempotency_key": idemKey,
	})

	resp, err := o.payments.CreatePayment(ctx, token, idemKey, backend.CreatePaymentRequest{
		PlanID:       req.Plan.ID,
		BillingCycle: string(req.Cycle),
		Currency:     string(req.Currency),
	})
	if err != nil {
		return nil, o.createFailed(log, sess, err)
	}
	if !resp.Success || resp.OrderID == "" || resp.PaymentLink == "" {
		log.WithField("message", resp.Message).Warn("backend declined order")
		o.metrics.Checkout("failed")
		return nil, domain.OrderCreationFailed(resp.Message, nil)
	}

	log.WithField("order_id", resp.OrderID).Info("order created")
	o.metrics.Checkout("redirect")
	return Redirect{
		Order: domain.Order{
			OrderID:  resp.OrderID,
			PlanID:   req.Plan.ID,
			Cycle:    req.Cycle,
			Currency: req.Currency,
			Status:   payment.StatusPending,
		},
		PaymentLink: resp.PaymentLink,
	}, nil
}

func (o *Orchestrator) createFailed(log logrus.FieldLogger, sess session.Session, err error) error {
	if se, ok := backend.AsStatusError(err); ok {
		if se.Unauthorized() {
			sess.ClearCredential()
			log.Warn("credential rejected while creating order")
			o.metrics.Checkout("session_expired")
			o.metrics.SessionExpired("checkout")
			return domain.SessionExpired()
		}
		log.WithError(err).Warn("order creation rejected")
		o.metrics.Checkout("failed")
		return domain.OrderCreationFailed(se.Message, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	o.metrics.Checkout("failed")
	if errors.Is(err, domain.ErrNetwork) {
		log.WithError(err).Error("payment backend unreachable")
		return domain.OrderCreationFailed("", err)
	}
	log.WithError(err).Error("unreadable order response")
	return domain.OrderCreationFailed("", err)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.ErrBadRequest(err.Error())
	}
	fe := verrs[0]
	field := fieldName(fe.Field())
	switch fe.Tag() {
	case "required":
		return domain.ErrBadRequest(fmt.Sprintf("%s is required", field))
	case "oneof":
		return domain.ErrBadRequest(fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
	case "max":
		return domain.ErrBadRequest(fmt.Sprintf("%s is too long", field))
	}
	return domain.ErrBadRequest(fmt.Sprintf("%s is invalid", field))
}

func fieldName(f string) string {
	switch f {
	case "PlanID", "Plan":
		return "plan"
	case "Cycle":
		return "billing cycle"
	}
	return strings.ToLower(f)
}
