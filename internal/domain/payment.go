package domain

import (
	"time"

	"github.com/tmplstore/billing/pkg/payment"
)

// Order is the client's view of a server-side order; only OrderID is authoritative.
type Order struct {
	OrderID  string         `json:"orderId"`
	PlanID   string         `json:"planId"`
	Cycle    BillingCycle   `json:"cycle"`
	Currency Currency       `json:"currency"`
	Status   payment.Status `json:"status"`
}

// Advance moves the order forward. Backward or repeated transitions are ignored
// and reported as false.
func (o *Order) Advance(next payment.Status) bool {
	if !o.Status.CanTransitionTo(next) {
		return false
	}
	o.Status = next
	return true
}

// CheckoutRequest is the validated input for starting a purchase.
type CheckoutRequest struct {
	PlanID   string `json:"planId" validate:"required,max=64"`
	Cycle    string `json:"billingCycle" validate:"required,oneof=monthly annual yearly"`
	Currency string `json:"currency" validate:"required,oneof=INR USD inr usd"`
}

// Transaction is a settled payment as listed by the admin payments endpoint.
// The gross amount is tax inclusive; base and tax are always derived from it.
type Transaction struct {
	TransactionID        string       `json:"transactionId"`
	UserID               string       `json:"userId"`
	UserEmail            string       `json:"userEmail,omitempty"`
	UserName             string       `json:"userName,omitempty"`
	PlanID               string       `json:"planId"`
	PlanName             string       `json:"planName"`
	Cycle                BillingCycle `json:"cycle"`
	Currency             Currency     `json:"currency"`
	GrossAmountMinor     int64        `json:"grossAmountMinor"`
	Status               string       `json:"status"`
	CreatedAt            time.Time    `json:"createdAt"`
	GatewayTransactionID string       `json:"gatewayTransactionId,omitempty"`
}

// Gross returns the charged amount as Money.
func (t *Transaction) Gross() Money {
	return Money{AmountMinor: t.GrossAmountMinor, Currency: t.Currency}
}

// TaxBreakdown decomposes a gross amount. BaseAmountMinor + TaxAmountMinor == GrossAmountMinor.
type TaxBreakdown struct {
	BaseAmountMinor  int64   `json:"baseAmountMinor"`
	TaxAmountMinor   int64   `json:"taxAmountMinor"`
	GrossAmountMinor int64   `json:"grossAmountMinor"`
	TaxRate          float64 `json:"taxRate"`
}

// Invoice is assembled from one Transaction and its TaxBreakdown. It has no lifecycle of its own.
type Invoice struct {
	Number    string            `json:"number"`
	IssuedAt  time.Time         `json:"issuedAt"`
	Status    string            `json:"status"`
	Customer  InvoiceCustomer   `json:"customer"`
	Currency  Currency          `json:"currency"`
	Lines     []InvoiceLineItem `json:"lines"`
	Base      Money             `json:"base"`
	Tax       Money             `json:"tax"`
	Total     Money             `json:"total"`
	TaxRate   float64           `json:"taxRate"`
	Reference string            `json:"reference,omitempty"`
}

// InvoiceCustomer identifies who was billed.
type InvoiceCustomer struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// InvoiceLineItem is one row of an invoice.
type InvoiceLineItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Amount      Money  `json:"amount"`
}
