package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/checkout"
	"github.com/tmplstore/billing/internal/domain"
	"github.com/tmplstore/billing/internal/session"
	"github.com/tmplstore/billing/internal/verify"
)

// OutcomeLookup finds an already recorded verification outcome.
type OutcomeLookup interface {
	FindByOrderID(ctx context.Context, orderID string) (*verify.AuditRecord, error)
}

// PaymentHandler handles checkout and payment status endpoints. The caller's bearer
// token is forwarded to the payment backend as is.
type PaymentHandler struct {
	checkout *checkout.Orchestrator
	verifier *verify.Verifier
	outcomes OutcomeLookup
	log      logrus.FieldLogger
}

// NewPaymentHandler creates a PaymentHandler. outcomes may be nil.
func NewPaymentHandler(o *checkout.Orchestrator, v *verify.Verifier, outcomes OutcomeLookup, log logrus.FieldLogger) *PaymentHandler {
	return &PaymentHandler{checkout: o, verifier: v, outcomes: outcomes, log: log.WithField("component", "payment_handler")}
}

// Checkout handles POST /api/checkout.
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	res, err := h.checkout.Checkout(r.Context(), req, session.FromRequest(r))
	if err != nil {
		Error(w, err)
		return
	}

	switch res := res.(type) {
	case checkout.Activated:
		JSON(w, http.StatusOK, map[string]interface{}{
			"result": "activated",
			"planId": res.PlanID,
		})
	case checkout.Redirect:
		JSON(w, http.StatusCreated, map[string]interface{}{
			"result":      "redirect",
			"orderId":     res.Order.OrderID,
			"paymentLink": res.PaymentLink,
			"order":       res.Order,
		})
	default:
		Error(w, domain.ErrInternal("unknown checkout result", nil))
	}
}

// Status handles GET /api/payments/{orderId}/status. It blocks until the order settles,
// fails, or the retry budget runs out. A caller without a bearer token is turned away
// before anything is looked up or started.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		Error(w, domain.ErrBadRequest("order id is required"))
		return
	}
	sess := session.FromRequest(r)
	if sess.Credential() == "" {
		Error(w, domain.SessionExpired())
		return
	}

	// Audit rows are not tied to a user, so a recorded success only confirms the
	// state. Plan and amount come from a live verify with the caller's token.
	if h.outcomes != nil {
		rec, err := h.outcomes.FindByOrderID(r.Context(), orderID)
		if err != nil {
			h.log.WithError(err).WithField("order_id", orderID).Warn("outcome lookup failed, verifying live")
		} else if rec != nil && rec.State == verify.Success {
			JSON(w, http.StatusOK, map[string]interface{}{
				"state":    rec.State,
				"orderId":  rec.OrderID,
				"recorded": true,
			})
			return
		}
	}

	final, err := h.verifier.Verify(r.Context(), orderID, sess, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			if r.Context().Err() == nil {
				JSON(w, http.StatusConflict, map[string]string{"error": "verification superseded by a newer request"})
			}
			return
		}
		appErr, ok := domain.AsAppError(err)
		if !ok {
			Error(w, err)
			return
		}
		body := map[string]interface{}{
			"state":   final.Kind,
			"orderId": orderID,
			"error":   appErr.Message,
		}
		if final.SessionExpired {
			body["clearCredential"] = true
		}
		JSON(w, appErr.Code, body)
		return
	}
	JSON(w, http.StatusOK, final)
}
