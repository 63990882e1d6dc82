package ledger

import (
	"context"
	"encoding/csv"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/domain"
	"github.com/tmplstore/billing/internal/session"
	"golang.org/x/sync/errgroup"
)

// CSVHeader is the first row of every export.
var CSVHeader = []string{
	"transaction_id", "created_at", "user_id", "plan_id", "plan_name", "cycle",
	"currency", "status", "gateway_transaction_id", "base", "tax", "gross",
}

// Export writes txs as CSV. Amounts are in major units with two decimals and are
// split with the same breakdown the detail view uses.
func (l *Ledger) Export(w io.Writer, txs []domain.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	if err := l.writeRows(cw, txs); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func (l *Ledger) writeRows(cw *csv.Writer, txs []domain.Transaction) error {
	for i := range txs {
		tx := &txs[i]
		b, err := l.Breakdown(tx)
		if err != nil {
			return err
		}
		err = cw.Write([]string{
			tx.TransactionID,
			tx.CreatedAt.UTC().Format(time.RFC3339),
			tx.UserID,
			tx.PlanID,
			tx.PlanName,
			string(tx.Cycle),
			string(tx.Currency),
			tx.Status,
			tx.GatewayTransactionID,
			domain.MinorToMajor(b.BaseAmountMinor).StringFixed(2),
			domain.MinorToMajor(b.TaxAmountMinor).StringFixed(2),
			domain.MinorToMajor(b.GrossAmountMinor).StringFixed(2),
		})
		if err != nil {
			return err
		}
	}
	l.metrics.ExportRows(len(txs))
	return nil
}

// maxExportPages bounds an export whose backend reports pages but no total.
const maxExportPages = 1000

// pageCount is the number of pages to fetch, trusting TotalPages only as far as
// Total and the page size allow.
func pageCount(first *Page, pageSize int) int {
	n := first.TotalPages
	if first.Total > 0 {
		n = min(n, (first.Total+pageSize-1)/pageSize)
	}
	return max(1, min(n, maxExportPages))
}

// ExportAll writes every transaction matching f, across all pages, as one CSV.
// Pages after the first are fetched concurrently; rows keep page order.
// It returns the number of rows written.
func (l *Ledger) ExportAll(ctx context.Context, w io.Writer, f Filters, sess session.Session) (int, error) {
	f.Page = 1
	if f.PageSize == 0 {
		f.PageSize = MaxPageSize
	}

	first, err := l.List(ctx, f, sess)
	if err != nil {
		return 0, err
	}

	pages := make([][]domain.Transaction, pageCount(first, f.PageSize))
	pages[0] = first.Transactions

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for n := 2; n <= len(pages); n++ {
		pf := f
		pf.Page = n
		n := n // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			p, err := l.List(gctx, pf, sess)
			if err != nil {
				return err
			}
			pages[n-1] = p.Transactions
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return 0, err
	}
	rows := 0
	for _, txs := range pages {
		if err := l.writeRows(cw, txs); err != nil {
			return rows, err
		}
		rows += len(txs)
	}
	cw.Flush()

	l.log.WithFields(logrus.Fields{"rows": rows, "pages": len(pages)}).Info("ledger exported")
	return rows, cw.Error()
}
