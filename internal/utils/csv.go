package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"tradedash/internal/domain"
)

func WriteOrdersToCSV(orders []*domain.Order, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"id", "symbol", "exchange", "side", "type", "product", "status", "quantity", "filled_quantity", "price", "avg_fill_price", "created_at", "executed_at"})

	for _, o := range orders {
		writer.Write([]string{
			o.ID,
			o.Symbol,
			o.Exchange,
			string(o.Side),
			string(o.Type),
			string(o.Product),
			string(o.Status),
			strconv.FormatInt(o.Quantity, 10),
			strconv.FormatInt(o.FilledQuantity, 10),
			o.Price.String(),
			o.AvgFillPrice.String(),
			formatTime(o.CreatedAt),
			formatTime(o.ExecutedAt),
		})
	}
	return writer.Error()
}

func WriteStrategiesToCSV(strategies []*domain.Strategy, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"id", "name", "asset_class", "status", "capital_allocated", "total_pnl", "max_drawdown", "total_trades", "winning_trades", "losing_trades", "win_rate", "last_executed_at"})

	for _, s := range strategies {
		writer.Write([]string{
			s.ID,
			s.Name,
			string(s.AssetClass),
			string(s.Status),
			s.CapitalAllocated.String(),
			s.TotalPnL.String(),
			s.MaxDrawdown.String(),
			strconv.Itoa(s.TotalTrades),
			strconv.Itoa(s.WinningTrades),
			strconv.Itoa(s.LosingTrades),
			strconv.FormatFloat(s.WinRate, 'f', 2, 64),
			formatTime(s.LastExecutedAt),
		})
	}
	return writer.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
