// Package invoice assembles invoices from settled transactions.
package invoice

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/tmplstore/billing/internal/domain"
)

// Compose builds the invoice for tx. It is pure: the invoice number is the transaction id
// and the issue date is the transaction's creation time.
func Compose(tx *domain.Transaction, b domain.TaxBreakdown) domain.Invoice {
	money := func(minor int64) domain.Money {
		return domain.Money{AmountMinor: minor, Currency: tx.Currency}
	}

	return domain.Invoice{
		Number:   tx.TransactionID,
		IssuedAt: tx.CreatedAt,
		Status:   tx.Status,
		Customer: domain.InvoiceCustomer{
			UserID: tx.UserID,
			Name:   tx.UserName,
			Email:  tx.UserEmail,
		},
		Currency: tx.Currency,
		Lines: []domain.InvoiceLineItem{{
			Description: lineDescription(tx),
			Quantity:    1,
			Amount:      money(b.BaseAmountMinor),
		}},
		Base:      money(b.BaseAmountMinor),
		Tax:       money(b.TaxAmountMinor),
		Total:     money(b.GrossAmountMinor),
		TaxRate:   b.TaxRate,
		Reference: tx.GatewayTransactionID,
	}
}

func lineDescription(tx *domain.Transaction) string {
	name := tx.PlanName
	if name == "" {
		name = tx.PlanID
	}
	if tx.Cycle == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, tx.Cycle)
}

// Breakdowner is the shared gross to base/tax split.
type Breakdowner interface {
	Breakdown(tx *domain.Transaction) (domain.TaxBreakdown, error)
}

// Composer binds Compose to the shared breakdown so invoices and exports never disagree.
type Composer struct {
	split Breakdowner
}

func NewComposer(split Breakdowner) *Composer {
	return &Composer{split: split}
}

func (c *Composer) Compose(tx *domain.Transaction) (domain.Invoice, error) {
	b, err := c.split.Breakdown(tx)
	if err != nil {
		return domain.Invoice{}, err
	}
	return Compose(tx, b), nil
}

// Render writes a plain-text invoice, as printed by billingctl.
func Render(w io.Writer, inv domain.Invoice) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Invoice\t%s\n", inv.Number)
	fmt.Fprintf(tw, "Issued\t%s\n", inv.IssuedAt.Format("2006-01-02"))
	if inv.Status != "" {
		fmt.Fprintf(tw, "Status\t%s\n", inv.Status)
	}
	fmt.Fprintf(tw, "Billed to\t%s\n", customerLine(inv.Customer))
	if inv.Reference != "" {
		fmt.Fprintf(tw, "Reference\t%s\n", inv.Reference)
	}
	fmt.Fprintln(tw, "\t")
	for _, l := range inv.Lines {
		fmt.Fprintf(tw, "%s x%d\t%s\n", l.Description, l.Quantity, l.Amount)
	}
	fmt.Fprintf(tw, "Subtotal\t%s\n", inv.Base)
	fmt.Fprintf(tw, "Tax (%s%%)\t%s\n", decimal.NewFromFloat(inv.TaxRate).Shift(2).String(), inv.Tax)
	fmt.Fprintf(tw, "Total\t%s\n", inv.Total)
	return tw.Flush()
}

func customerLine(c domain.InvoiceCustomer) string {
	parts := make([]string, 0, 3)
	if c.Name != "" {
		parts = append(parts, c.Name)
	}
	if c.Email != "" {
		parts = append(parts, "<"+c.Email+">")
	}
	if len(parts) == 0 {
		parts = append(parts, c.UserID)
	}
	return strings.Join(parts, " ")
}
