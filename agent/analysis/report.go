package analysis

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
)

const disclaimer = "For informational purposes only. Not investment advice."

var metricLabels = map[contractx.Metric]string{
	contractx.MetricPERatio:    "P/E Ratio",
	contractx.MetricROE:        "Return on Equity",
	contractx.MetricEVToEBITDA: "EV/EBITDA",
	contractx.MetricEPS:        "EPS",
}

func metricLabel(metric contractx.Metric) string {
	if label, ok := metricLabels[metric]; ok {
		return label
	}
	return string(metric)
}

func formatMetricValue(metric contractx.Metric, value float64) string {
	switch metric {
	case contractx.MetricPERatio, contractx.MetricEVToEBITDA:
		return fmt.Sprintf("%.2fx", value)
	case contractx.MetricROE:
		return fmt.Sprintf("%.2f%%", value)
	case contractx.MetricEPS:
		return fmt.Sprintf("$%.2f", value)
	default:
		return fmt.Sprintf("%.2f", value)
	}
}

// formatMarketCap renders a raw USD market cap with a T/B/M suffix,
// e.g. 370_800_000_000 becomes "$370.80B".
func formatMarketCap(cap float64) string {
	if cap <= 0 {
		return "N/A"
	}
	value := decimal.NewFromFloat(cap)
	trillion := decimal.New(1, 12)
	billion := decimal.New(1, 9)
	million := decimal.New(1, 6)
	switch {
	case value.GreaterThanOrEqual(trillion):
		return fmt.Sprintf("$%sT", value.Div(trillion).StringFixed(2))
	case value.GreaterThanOrEqual(billion):
		return fmt.Sprintf("$%sB", value.Div(billion).StringFixed(2))
	case value.GreaterThanOrEqual(million):
		return fmt.Sprintf("$%sM", value.Div(million).StringFixed(2))
	default:
		return fmt.Sprintf("$%s", value.StringFixed(2))
	}
}

func renderReport(rec contractx.FinancialRecord, score contractx.ScoreResult) string {
	var sb strings.Builder

	header := rec.Ticker
	if rec.CompanyName != "" {
		header = fmt.Sprintf("%s (%s)", rec.CompanyName, rec.Ticker)
	}
	fmt.Fprintf(&sb, "Financial Analysis: %s\n", header)
	if rec.Sector != "" {
		fmt.Fprintf(&sb, "Sector: %s", rec.Sector)
		if rec.Industry != "" {
			fmt.Fprintf(&sb, " | Industry: %s", rec.Industry)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Market Cap: %s\n", formatMarketCap(rec.MarketCap))
	if rec.ClosePrice > 0 {
		fmt.Fprintf(&sb, "Last Close: $%.2f\n", rec.ClosePrice)
	}
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Overall Score: %s/100 (%s)\n", score.Overall.StringFixed(2), score.Band)
	fmt.Fprintf(&sb, "Valuation: %s\n", score.Valuation)
	sb.WriteString("\n")

	if len(score.Metrics) > 0 {
		sb.WriteString("Key Metrics:\n")
		for _, ms := range score.Metrics {
			fmt.Fprintf(&sb, "  %s: %s (%s)\n", metricLabel(ms.Metric), formatMetricValue(ms.Metric, ms.Value), ms.Rating)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Recommendation: %s\n", score.Recommendation)
	sb.WriteString("\n")
	sb.WriteString(disclaimer)
	return sb.String()
}

func renderComparison(ticker string, similar []contractx.SimilarStock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Stocks similar to %s:\n", ticker)
	if len(similar) == 0 {
		sb.WriteString("  No similar stocks found.\n")
	}
	for i, ss := range similar {
		name := ss.Ticker
		if ss.CompanyName != "" {
			name = fmt.Sprintf("%s (%s)", ss.CompanyName, ss.Ticker)
		}
		fmt.Fprintf(&sb, "  %d. %s", i+1, name)
		if ss.Sector != "" {
			fmt.Fprintf(&sb, " | %s", ss.Sector)
		}
		if ss.ClosePrice > 0 {
			fmt.Fprintf(&sb, " | $%.2f", ss.ClosePrice)
		}
		fmt.Fprintf(&sb, " | similarity %.2f\n", ss.Similarity)
	}
	sb.WriteString("\n")
	sb.WriteString(disclaimer)
	return sb.String()
}
