// Package cli implements billingctl, an operator tool that runs the payment core
// against the backend from a terminal.
package cli

import (
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/backend"
	"github.com/tmplstore/billing/internal/catalog"
	"github.com/tmplstore/billing/internal/checkout"
	"github.com/tmplstore/billing/internal/config"
	"github.com/tmplstore/billing/internal/invoice"
	"github.com/tmplstore/billing/internal/ledger"
	"github.com/tmplstore/billing/internal/pricing"
	"github.com/tmplstore/billing/internal/session"
	"github.com/tmplstore/billing/internal/verify"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
}

// App holds everything the commands act on.
type App struct {
	Out      io.Writer
	Store    *session.FileStore
	Catalog  *catalog.Catalog
	Calc     *pricing.Calculator
	Rate     float64
	Checkout *checkout.Orchestrator
	Verifier *verify.Verifier
	Ledger   *ledger.Ledger
	Invoices *invoice.Composer
}

// NewApp wires the payment core to the backend named in cfg.
func NewApp(cfg *config.Config, store *session.FileStore, out io.Writer, log logrus.FieldLogger) *App {
	client := backend.NewClient(cfg.BackendURL, cfg.HTTPTimeout, log)
	calc := pricing.NewCalculator(cfg.TaxRate)
	plans := catalog.New(client, cfg.PricingTTL, log).WithDefaultDiscount(cfg.AnnualDiscount)
	l := ledger.New(client, calc, nil, log)
	return &App{
		Out:      out,
		Store:    store,
		Catalog:  plans,
		Calc:     calc,
		Rate:     cfg.ExchangeRate,
		Checkout: checkout.NewOrchestrator(client, plans, nil, log),
		Verifier: verify.NewVerifier(client, verify.Options{RetryDelay: cfg.RetryDelay, MaxRetries: cfg.MaxRetries}, nil, nil, log),
		Ledger:   l,
		Invoices: invoice.NewComposer(l),
	}
}

// NewRootCommand creates the root command
func NewRootCommand(app *App) *Command {
	root := &Command{
		Name:        "billingctl",
		Description: "billingctl - plan pricing and payment operations",
		Subcommands: make(map[string]*Command),
	}

	root.Subcommands["login"] = newLoginCommand(app)
	root.Subcommands["logout"] = newLogoutCommand(app)
	root.Subcommands["quote"] = newQuoteCommand(app)
	root.Subcommands["checkout"] = newCheckoutCommand(app)
	root.Subcommands["verify"] = newVerifyCommand(app)
	root.Subcommands["ledger"] = newLedgerCommand(app)
	root.Subcommands["invoice"] = newInvoiceCommand(app)

	return root
}

// Execute runs the command named by args[0], descending into nested subcommands.
func (c *Command) Execute(out io.Writer, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		if c.Run != nil && len(c.Subcommands) == 0 {
			return c.Run(args)
		}
		c.usage(out)
		return nil
	}

	if sub, ok := c.Subcommands[args[0]]; ok {
		if len(sub.Subcommands) > 0 {
			return sub.Execute(out, args[1:])
		}
		return sub.Run(args[1:])
	}
	if c.Run != nil {
		return c.Run(args)
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) {
	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
}

func newFlagSet(app *App, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(app.Out)
	return fs
}
