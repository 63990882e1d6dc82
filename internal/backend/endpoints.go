package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// PricingPlan is the plan shape published by GET /api/pricing/{planId}.
// Prices are in major INR units.
type PricingPlan struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Tier           string   `json:"tier,omitempty"`
	MonthlyPrice   float64  `json:"monthlyPrice"`
	YearlyPrice    float64  `json:"yearlyPrice"`
	AnnualDiscount float64  `json:"annualDiscount"`
	Features       []string `json:"features"`
}

type pricingResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Plan    *PricingPlan `json:"plan"`
}

// GetPricing fetches one plan definition.
func (c *Client) GetPricing(ctx context.Context, planID string) (*PricingPlan, error) {
	var resp pricingResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/pricing/" + url.PathEscape(planID),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.Plan == nil {
		return nil, &StatusError{Code: http.StatusNotFound, Message: resp.Message}
	}
	return resp.Plan, nil
}

// CreatePaymentRequest is the body of POST /api/payments/create.
type CreatePaymentRequest struct {
	PlanID       string `json:"planId"`
	BillingCycle string `json:"billingCycle"`
	Currency     string `json:"currency"`
}

// CreatePaymentResponse is either {success, paymentLink, orderId} or {success:false, message}.
type CreatePaymentResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	PaymentLink string `json:"paymentLink,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
}

// CreatePayment asks the backend to open a gateway order.
func (c *Client) CreatePayment(ctx context.Context, token, idempotencyKey string, body CreatePaymentRequest) (*CreatePaymentResponse, error) {
	var resp CreatePaymentResponse
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/api/payments/create",
		body:    body,
		token:   token,
		headers: map[string]string{"Idempotency-Key": idempotencyKey},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyUser is the user snapshot returned alongside a verification.
type VerifyUser struct {
	ID     string `json:"id,omitempty"`
	Plan   string `json:"plan,omitempty"`
	PlanID string `json:"planId,omitempty"`
}

// VerifyResponse is the body of POST /api/payments/verify.
type VerifyResponse struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message,omitempty"`
	User          *VerifyUser `json:"user,omitempty"`
	PlanName      string      `json:"planName,omitempty"`
	BillingCycle  string      `json:"billingCycle,omitempty"`
	OrderCurrency string      `json:"orderCurrency,omitempty"`
	OrderAmount   float64     `json:"orderAmount,omitempty"`
	OrderStatus   string      `json:"orderStatus,omitempty"`
}

// VerifyPayment asks for the settlement status of an order.
func (c *Client) VerifyPayment(ctx context.Context, token, orderID string) (*VerifyResponse, error) {
	var resp VerifyResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/payments/verify",
		body:   map[string]string{"orderId": orderID},
		token:  token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// CurrentPlan is the body of GET /api/users/current-plan.
type CurrentPlan struct {
	Success            bool   `json:"success"`
	Plan               string `json:"plan"`
	PlanID             string `json:"planId"`
	SubscriptionStatus string `json:"subscriptionStatus"`
	IsPremium          bool   `json:"isPremium"`
	PlanExpiryDate     string `json:"planExpiryDate,omitempty"`
}

// GetCurrentPlan reads the caller's plan as the backend currently sees it.
func (c *Client) GetCurrentPlan(ctx context.Context, token string) (*CurrentPlan, error) {
	var resp CurrentPlan
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/users/current-plan",
		token:  token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// AdminPayment is one settled payment as listed for administrators.
// Amount is in major units and tax inclusive.
type AdminPayment struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	UserEmail        string    `json:"userEmail,omitempty"`
	UserName         string    `json:"userName,omitempty"`
	PlanID           string    `json:"planId"`
	PlanName         string    `json:"planName"`
	BillingCycle     string    `json:"billingCycle"`
	Currency         string    `json:"currency"`
	Amount           float64   `json:"amount"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	GatewayPaymentID string    `json:"gatewayPaymentId,omitempty"`
}

// PaymentStats is the optional aggregate block of the admin listing.
type PaymentStats struct {
	TotalRevenue float64        `json:"totalRevenue"`
	ByStatus     map[string]int `json:"byStatus,omitempty"`
}

// AdminPaymentsResponse is the body of GET /api/admin/payments.
type AdminPaymentsResponse struct {
	Payments    []AdminPayment `json:"payments"`
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
	Total       int            `json:"total"`
	Stats       *PaymentStats  `json:"stats,omitempty"`
}

// PaymentQuery is the server-side filter for the admin listing.
type PaymentQuery struct {
	Status    string
	PlanID    string
	Search    string
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

func (q PaymentQuery) values() url.Values {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.PlanID != "" {
		v.Set("planId", q.PlanID)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.SortBy != "" {
		v.Set("sortBy", q.SortBy)
	}
	if q.SortOrder != "" {
		v.Set("sortOrder", q.SortOrder)
	}
	return v
}

// ListPayments returns one page of settled payments.
func (c *Client) ListPayments(ctx context.Context, token string, q PaymentQuery) (*AdminPaymentsResponse, error) {
	var resp AdminPaymentsResponse
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/admin/payments",
		query:  q.values(),
		token:  token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPayment returns the full detail of one payment.
func (c *Client) GetPayment(ctx context.Context, token, id string) (*AdminPayment, error) {
	var resp struct {
		Payment *AdminPayment `json:"payment"`
	}
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/admin/payments/" + url.PathEscape(id),
		token:  token,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Payment == nil {
		return nil, &StatusError{Code: http.StatusNotFound, Message: "payment not found"}
	}
	return resp.Payment, nil
}
