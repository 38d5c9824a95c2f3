package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"BasketPilot/internal/model"
	"BasketPilot/internal/sentiment"
)

// FormatOrderAlert formats one executed order.
func FormatOrderAlert(f model.Fill) string {
	var b strings.Builder
	title := "🚨 <b>New trade</b>"
	if f.Receipt.Simulated {
		title = "🧪 <b>Simulated trade</b>"
	}
	b.WriteString(title + "\n")
	b.WriteString(fmt.Sprintf("Symbol: <code>%s</code>\n", f.Order.Symbol))
	b.WriteString(fmt.Sprintf("Side: <code>%s</code>\n", f.Order.Side))
	if f.Order.Reason != model.ReasonNone {
		b.WriteString(fmt.Sprintf("Reason: <code>%s</code>\n", f.Order.Reason))
	}
	b.WriteString(fmt.Sprintf("Quantity: <code>%s</code>\n", f.Order.Quantity.String()))
	b.WriteString(fmt.Sprintf("Price: <code>%s</code>\n", f.Order.Price.StringFixed(2)))
	if f.Receipt.OrderID != "" {
		b.WriteString(fmt.Sprintf("Order ID: <code>%s</code>\n", f.Receipt.OrderID))
	}
	return b.String()
}

// FormatLiquidationAlert formats an emergency liquidation.
func FormatLiquidationAlert(initial, current, drawdown float64, fills []model.Fill) string {
	var b strings.Builder
	b.WriteString("🛑 <b>Emergency liquidation</b>\n\n")
	b.WriteString(fmt.Sprintf("Initial value: %.2f\n", initial))
	b.WriteString(fmt.Sprintf("Current value: %.2f\n", current))
	b.WriteString(fmt.Sprintf("Drawdown: %.2f%%\n\n", drawdown*100))
	failed := 0
	for _, f := range fills {
		mark := "✅"
		if !f.Executed() {
			mark = "❌"
			failed++
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n", mark, f.Order.Symbol, f.Order.Quantity.String()))
	}
	if len(fills) == 0 {
		b.WriteString("No assets to sell\n")
	}
	if failed > 0 {
		b.WriteString(fmt.Sprintf("\n%d order(s) failed, check logs\n", failed))
	}
	return b.String()
}

// FormatCycleSummary formats the outcome of one trading cycle.
func FormatCycleSummary(cycleID string, top []model.ScoredSymbol, fills []model.Fill, value float64) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Cycle %s</b> | %s\n\n", shortID(cycleID), time.Now().UTC().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Portfolio value: %.2f\n\n", value))

	if len(top) > 0 {
		b.WriteString("📈 <b>Top scores:</b>\n")
		for i, s := range top {
			if i == 5 {
				break
			}
			b.WriteString(fmt.Sprintf("  %d. %s %+.3f (RSI %.0f, %%B %.2f)\n",
				i+1, s.Symbol, s.Score, s.Indicators.RSI, s.Indicators.BBPercent))
		}
		b.WriteString("\n")
	}

	executed, failed := 0, 0
	for _, f := range fills {
		if f.Executed() {
			executed++
		} else {
			failed++
		}
	}
	b.WriteString(fmt.Sprintf("Orders: %d executed, %d failed\n", executed, failed))
	return b.String()
}

// FormatSentimentReport formats the aggregate news sentiment and the top
// three headlines.
func FormatSentimentReport(news float64, headlines []sentiment.Headline) string {
	var b strings.Builder
	b.WriteString("📈 <b>Market sentiment report</b>\n\n")
	b.WriteString(fmt.Sprintf("Aggregate news sentiment: %.1f%%\n\n", news*100))
	b.WriteString("📰 <b>Top headlines</b>\n")
	for i, h := range headlines {
		if i == 3 {
			break
		}
		b.WriteString(fmt.Sprintf("%d. <a href=\"%s\">%s</a>\n", i+1, html.EscapeString(h.URL), html.EscapeString(h.Title)))
		b.WriteString(fmt.Sprintf("   ⚖️ Sentiment: %s\n", sentimentMark(h.Sentiment)))
	}
	if len(headlines) == 0 {
		b.WriteString("No headlines\n")
	}
	return b.String()
}

func sentimentMark(v float64) string {
	switch {
	case v > 0.5:
		return "✅"
	case v == 0.5:
		return "⚠️"
	default:
		return "❌"
	}
}

// FormatPositions lists open positions.
func FormatPositions(positions []model.Position) string {
	if len(positions) == 0 {
		return "📦 No open positions"
	}
	var b strings.Builder
	b.WriteString("📦 <b>Open positions</b>\n\n")
	for _, p := range positions {
		b.WriteString(fmt.Sprintf("%s: %s @ %s (since %s)\n",
			p.Symbol, p.Quantity.String(), p.EntryPrice.StringFixed(4), p.OpenedAt.UTC().Format("2006-01-02 15:04")))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
