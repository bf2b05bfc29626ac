package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent ledger transactions.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	svc, closer, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	txs, err := svc.RecentTransactions(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		fmt.Fprintln(os.Stdout, "no transactions found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPlan\tPhase\tStatus\tAmount\tReceived\tTx\tError")

	for _, tx := range txs {
		errMsg := ""
		if tx.Error != nil {
			errMsg = sanitizeInline(*tx.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.CreatedAt.UTC().Format(time.RFC3339),
			tx.PlanID,
			tx.Phase,
			tx.Status,
			tx.Amount.String(),
			tx.Received.String(),
			tx.TxHash,
			errMsg,
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
