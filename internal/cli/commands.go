package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/tmplstore/billing/internal/checkout"
	"github.com/tmplstore/billing/internal/domain"
	"github.com/tmplstore/billing/internal/invoice"
	"github.com/tmplstore/billing/internal/ledger"
	"github.com/tmplstore/billing/internal/verify"
)

func newLoginCommand(app *App) *Command {
	return &Command{
		Name:        "login",
		Description: "Store a bearer token for later commands",
		Run: func(args []string) error {
			fs := newFlagSet(app, "login")
			token := fs.String("token", "", "Bearer token issued by the auth service")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if strings.TrimSpace(*token) == "" {
				return fmt.Errorf("token is required")
			}
			if err := app.Store.Save(strings.TrimSpace(*token)); err != nil {
				return fmt.Errorf("failed to store credential: %w", err)
			}
			fmt.Fprintln(app.Out, "✅ Credential stored")
			return nil
		},
	}
}

func newLogoutCommand(app *App) *Command {
	return &Command{
		Name:        "logout",
		Description: "Forget the stored bearer token",
		Run: func(args []string) error {
			app.Store.ClearCredential()
			fmt.Fprintln(app.Out, "Credential removed")
			return nil
		},
	}
}

func newQuoteCommand(app *App) *Command {
	return &Command{
		Name:        "quote",
		Description: "Price a plan for a billing cycle and currency",
		Run: func(args []string) error {
			fs := newFlagSet(app, "quote")
			planID := fs.String("plan", "", "Plan id")
			cycleFlag := fs.String("cycle", "monthly", "Billing cycle (monthly, annual)")
			currencyFlag := fs.String("currency", "INR", "Display currency (INR, USD)")
			if err := fs.Parse(args); err != nil {
				return err
			}

			cycle, err := domain.ParseCycle(*cycleFlag)
			if err != nil {
				return err
			}
			currency, err := domain.ParseCurrency(*currencyFlag)
			if err != nil {
				return err
			}
			plan, err := app.Catalog.Get(context.Background(), *planID)
			if err != nil {
				return err
			}
			q, err := app.Calc.Quote(plan, cycle, currency, app.Rate)
			if err != nil {
				return err
			}

			line := fmt.Sprintf("%s (%s, %s): %s", plan.Name, cycle, currency, q.Amount())
			if q.OriginalAmountMinor != nil && q.SavingsMinor != nil {
				line += fmt.Sprintf("  was %s, save %s",
					domain.Money{AmountMinor: *q.OriginalAmountMinor, Currency: currency},
					domain.Money{AmountMinor: *q.SavingsMinor, Currency: currency})
			}
			fmt.Fprintln(app.Out, line)
			return nil
		},
	}
}

func newCheckoutCommand(app *App) *Command {
	return &Command{
		Name:        "checkout",
		Description: "Start a purchase and print the payment link",
		Run: func(args []string) error {
			fs := newFlagSet(app, "checkout")
			planID := fs.String("plan", "", "Plan id")
			cycle := fs.String("cycle", "monthly", "Billing cycle (monthly, annual)")
			currency := fs.String("currency", "INR", "Currency (INR, USD)")
			if err := fs.Parse(args); err != nil {
				return err
			}

			res, err := app.Checkout.Checkout(context.Background(), domain.CheckoutRequest{
				PlanID:   *planID,
				Cycle:    *cycle,
				Currency: *currency,
			}, app.Store)
			if err != nil {
				return explain(err)
			}

			switch res := res.(type) {
			case checkout.Activated:
				fmt.Fprintf(app.Out, "✅ Plan %s activated, no payment needed\n", res.PlanID)
			case checkout.Redirect:
				fmt.Fprintf(app.Out, "Order %s created\n", res.Order.OrderID)
				fmt.Fprintf(app.Out, "Complete payment at: %s\n", res.PaymentLink)
				fmt.Fprintf(app.Out, "Then run: billingctl verify --order %s\n", res.Order.OrderID)
			}
			return nil
		},
	}
}

func newVerifyCommand(app *App) *Command {
	return &Command{
		Name:        "verify",
		Description: "Wait for an order to settle",
		Run: func(args []string) error {
			fs := newFlagSet(app, "verify")
			orderID := fs.String("order", "", "Order id returned by checkout")
			if err := fs.Parse(args); err != nil {
				return err
			}
			if *orderID == "" {
				return fmt.Errorf("order is required")
			}

			final, err := app.Verifier.Verify(context.Background(), *orderID, app.Store, func(s verify.State) {
				switch s.Kind {
				case verify.Loading:
					fmt.Fprintf(app.Out, "Verifying order %s...\n", s.OrderID)
				case verify.Pending:
					fmt.Fprintf(app.Out, "  attempt %d: %s\n", s.Attempt, s.Message)
				}
			})
			if err != nil {
				return explain(err)
			}

			d := final.Details
			fmt.Fprintf(app.Out, "✅ Payment confirmed: %s (%s) %s\n", d.PlanName, d.Cycle, d.Amount())
			if d.Reconciled {
				fmt.Fprintf(app.Out, "Current plan: %s\n", d.UserPlan)
			}
			return nil
		},
	}
}

func newLedgerCommand(app *App) *Command {
	cmd := &Command{
		Name:        "ledger",
		Description: "Inspect and export settled payments (admin)",
		Subcommands: make(map[string]*Command),
	}
	cmd.Subcommands["list"] = &Command{
		Name:        "list",
		Description: "List one page of payments",
		Run: func(args []string) error {
			fs := newFlagSet(app, "ledger list")
			f := bindFilters(fs)
			asJSON := fs.Bool("json", false, "Print JSON")
			if err := fs.Parse(args); err != nil {
				return err
			}

			page, err := app.Ledger.List(context.Background(), *f, app.Store)
			if err != nil {
				return explain(err)
			}
			if *asJSON {
				return printJSON(app.Out, page)
			}

			tw := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tUSER\tPLAN\tCYCLE\tGROSS\tSTATUS")
			for _, tx := range page.Transactions {
				user := tx.UserEmail
				if user == "" {
					user = tx.UserID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					tx.TransactionID, tx.CreatedAt.Format("2006-01-02"), user, tx.PlanName, tx.Cycle, tx.Gross(), tx.Status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "page %d/%d, %d total\n", page.CurrentPage, page.TotalPages, page.Total)
			return nil
		},
	}
	cmd.Subcommands["export"] = &Command{
		Name:        "export",
		Description: "Export every matching payment as CSV",
		Run: func(args []string) error {
			fs := newFlagSet(app, "ledger export")
			f := bindFilters(fs)
			outPath := fs.String("out", "", "Output file (default stdout)")
			if err := fs.Parse(args); err != nil {
				return err
			}

			if *outPath == "" {
				_, err := app.Ledger.ExportAll(context.Background(), app.Out, *f, app.Store)
				return explain(err)
			}

			rows, err := exportToFile(app, *outPath, *f)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(app.Out, "✅ Wrote %d rows to %s\n", rows, *outPath)
			return nil
		},
	}
	return cmd
}

func newInvoiceCommand(app *App) *Command {
	return &Command{
		Name:        "invoice",
		Description: "Print the invoice for a payment (admin)",
		Run: func(args []string) error {
			fs := newFlagSet(app, "invoice")
			id := fs.String("id", "", "Transaction id")
			asJSON := fs.Bool("json", false, "Print JSON")
			if err := fs.Parse(args); err != nil {
				return err
			}

			tx, err := app.Ledger.Get(context.Background(), *id, app.Store)
			if err != nil {
				return explain(err)
			}
			inv, err := app.Invoices.Compose(tx)
			if err != nil {
				return err
			}
			if *asJSON {
				return printJSON(app.Out, inv)
			}
			return invoice.Render(app.Out, inv)
		},
	}
}

var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// exportToFile writes the export to path. The file only counts as written once
// Close succeeds.
func exportToFile(app *App, path string, f ledger.Filters) (int, error) {
	file, err := createFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	rows, err := app.Ledger.ExportAll(context.Background(), file, f, app.Store)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to write %s: %w", path, cerr)
	}
	return rows, err
}

func bindFilters(fs *flag.FlagSet) *ledger.Filters {
	f := &ledger.Filters{}
	fs.StringVar(&f.Status, "status", "", "Filter by status")
	fs.StringVar(&f.PlanID, "plan", "", "Filter by plan id")
	fs.StringVar(&f.Search, "search", "", "Search user or payment id")
	fs.IntVar(&f.Page, "page", 1, "Page number")
	fs.IntVar(&f.PageSize, "page-size", 0, "Rows per page")
	fs.StringVar(&f.SortBy, "sort-by", "createdAt", "Sort field (createdAt, amount, status, planName)")
	fs.StringVar(&f.SortOrder, "sort-order", "desc", "Sort order (asc, desc)")
	return f
}

// explain turns a rejected credential into a hint to log in again.
func explain(err error) error {
	if errors.Is(err, domain.ErrSessionExpired) {
		return fmt.Errorf("%w (run `billingctl login --token ...`)", err)
	}
	return err
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
