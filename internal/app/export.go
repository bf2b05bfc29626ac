package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	chart "github.com/wcharczuk/go-chart/v2"

	"driftbuy/internal/storage"
)

// Export renders a plan's ledger as CSV and/or a PNG chart of the investment
// curve.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	planID, err := uuid.Parse(opts.PlanID)
	if err != nil {
		return fmt.Errorf("parse plan id: %w", err)
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	svc, closer, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closer()

	txs, err := svc.PlanTransactions(ctx, planID, opts.MaxPoints)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		a.Logger.Info().Msg("no transactions found for plan")
		return nil
	}

	// Ledger listings are newest first; charts want chronological order.
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})

	downsampled := downsampleTransactions(txs, opts.MaxPoints)
	a.Logger.Info().Int("total", len(txs)).Int("exported", len(downsampled)).Msg("exporting transactions")

	if opts.CSVPath != "" {
		if err := writeLedgerCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeLedgerPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleTransactions(txs []storage.Transaction, max int) []storage.Transaction {
	if max <= 0 || len(txs) <= max {
		return txs
	}

	result := make([]storage.Transaction, 0, max)
	step := float64(len(txs)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(txs) {
			idx = len(txs) - 1
		}
		result = append(result, txs[idx])
	}
	return result
}

func writeLedgerCSV(path string, txs []storage.Transaction) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"created_at", "phase", "status", "amount", "received", "tx_hash", "position_ref", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, tx := range txs {
		errMsg := ""
		if tx.Error != nil {
			errMsg = *tx.Error
		}
		record := []string{
			tx.CreatedAt.UTC().Format(time.RFC3339),
			string(tx.Phase),
			string(tx.Status),
			tx.Amount.String(),
			tx.Received.String(),
			tx.TxHash,
			tx.PositionRef,
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeLedgerPNG(path string, txs []storage.Transaction) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, 0, len(txs))
	tradeSize := make([]float64, 0, len(txs))
	cumulative := make([]float64, 0, len(txs))

	total := 0.0
	for _, tx := range txs {
		if tx.Phase != storage.PhaseConvert || tx.Status != storage.TxCompleted {
			continue
		}
		amount := tx.Amount.InexactFloat64()
		total += amount
		x = append(x, tx.CreatedAt)
		tradeSize = append(tradeSize, amount)
		cumulative = append(cumulative, total)
	}
	if len(x) < 2 {
		return errors.New("need at least two completed conversions to chart")
	}

	amountFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Invested (stable)",
			ValueFormatter: amountFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Trade size",
			ValueFormatter: amountFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Cumulative invested",
				XValues: x,
				YValues: cumulative,
			},
			chart.TimeSeries{
				Name:    "Trade size",
				XValues: x,
				YValues: tradeSize,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
