package contract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	// RoleCoordinator owns the human boundary: it relays human text, is the
	// only role permitted to originate a ToolCall from raw human input, and
	// executes pending tool calls.
	RoleCoordinator Role = "coordinator"
	// RoleAnalyst narrates analysis results; it never issues tool calls.
	RoleAnalyst Role = "analyst"
	// RoleResearcher supplies context and may issue a ToolCall in response to
	// a new human request.
	RoleResearcher Role = "researcher"
)

// ToolCall is a function invocation requested by an agent. It must be
// answered by exactly one ToolResult before any other non-tool turn.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult answers a ToolCall. A failure is carried in Err; the result is
// always terminating from the orchestrator's point of view.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
	Err     string `json:"error,omitempty"`
}

func (r ToolResult) Failed() bool {
	return r.Err != ""
}

// Message is one transcript entry. At most one of ToolCall/ToolResult is set.
// Auto marks a machine-injected turn, such as the checkpoint auto-reply; an
// Auto message never counts as human input.
type Message struct {
	Speaker    string      `json:"speaker"`
	Role       Role        `json:"role"`
	Content    string      `json:"content,omitempty"`
	Auto       bool        `json:"auto,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// NormalizeTicker trims, uppercases, and validates a raw ticker symbol.
func NormalizeTicker(raw string) (string, error) {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if ticker == "" {
		return "", fmt.Errorf("%w: ticker symbol is required, provide a valid ticker like AAPL", ErrValidation)
	}
	if !tickerPattern.MatchString(ticker) {
		return "", fmt.Errorf("%w: %q is not a valid ticker symbol, provide a valid ticker like AAPL", ErrValidation, strings.TrimSpace(raw))
	}
	return ticker, nil
}

// FinancialRecord holds the raw fundamentals retrieved for one ticker. Zero
// or negative metric values mean the metric is absent from the source data.
type FinancialRecord struct {
	Ticker       string    `json:"ticker"`
	CompanyName  string    `json:"company_name,omitempty"`
	Sector       string    `json:"sector,omitempty"`
	Industry     string    `json:"industry,omitempty"`
	MarketCap    float64   `json:"market_cap,omitempty"`
	ClosePrice   float64   `json:"close_price,omitempty"`
	PERatio      float64   `json:"pe_ratio,omitempty"`
	ROE          float64   `json:"roe,omitempty"`
	EVToEBITDA   float64   `json:"ev_to_ebitda,omitempty"`
	EPS          float64   `json:"eps,omitempty"`
	DebtToEquity float64   `json:"debt_to_equity,omitempty"`
	RetrievedAt  time.Time `json:"retrieved_at"`
}

type Metric string

const (
	MetricPERatio    Metric = "peRatio"
	MetricROE        Metric = "roe"
	MetricEVToEBITDA Metric = "evToEbitda"
	MetricEPS        Metric = "eps"
)

type Rating string

const (
	RatingExcellent Rating = "Excellent"
	RatingGood      Rating = "Good"
	RatingFair      Rating = "Fair"
	RatingPoor      Rating = "Poor"
)

// MetricScore is one rated metric inside a ScoreResult.
type MetricScore struct {
	Metric Metric  `json:"metric"`
	Value  float64 `json:"value"`
	Rating Rating  `json:"rating"`
}

// ScoreResult is the derived verdict for one FinancialRecord. It is a pure
// function of the record and the configured bands: same input, same output.
type ScoreResult struct {
	Overall         decimal.Decimal `json:"overall"`
	Band            string          `json:"band"`
	Metrics         []MetricScore   `json:"metrics"`
	Valuation       string          `json:"valuation"`
	Recommendation  string          `json:"recommendation"`
	MetricsAnalyzed int             `json:"metrics_analyzed"`
}

// AnalysisResult is what the tool surface returns for a successful request.
type AnalysisResult struct {
	Ticker string          `json:"ticker"`
	Record FinancialRecord `json:"record"`
	Score  ScoreResult     `json:"score"`
	Report string          `json:"report"`
}

// SimilarStock is one row of a vector-similarity ranking.
type SimilarStock struct {
	Ticker      string  `json:"ticker"`
	CompanyName string  `json:"company_name,omitempty"`
	Sector      string  `json:"sector,omitempty"`
	ClosePrice  float64 `json:"close_price,omitempty"`
	Similarity  float64 `json:"similarity"`
}

// CacheEntry is the best-effort persisted copy of a finished analysis.
type CacheEntry struct {
	Ticker string          `json:"ticker"`
	Score  ScoreResult     `json:"score"`
	Record FinancialRecord `json:"record"`
	TTL    time.Duration   `json:"-"`
}
