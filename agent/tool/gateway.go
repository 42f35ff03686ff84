// Package tool exposes the analysis pipeline to agents through an
// allow-listed, timeout-bounded gateway.
package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/prachya-t/tickerchat/agent/analysis"
	contractx "github.com/prachya-t/tickerchat/agent/contract"
	logx "github.com/prachya-t/tickerchat/pkg/logger"
)

const (
	NameFinancialAnalysis = "get_financial_analysis"
	NameStockComparison   = "get_stock_comparison"

	defaultExecTimeout = 30 * time.Second
	defaultCompareTopK = 5
	maxCompareTopK     = 10
)

// Infos describes the allow-listed tools in the shape chat models consume.
func Infos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: NameFinancialAnalysis,
			Desc: "Retrieve financial metrics for a stock ticker and score its fundamentals.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"ticker": {Type: schema.String, Desc: "Stock ticker symbol, e.g. AAPL or KBANK.BK", Required: true},
			}),
		},
		{
			Name: NameStockComparison,
			Desc: "Find stocks with a similar financial profile to the given ticker.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"ticker": {Type: schema.String, Desc: "Stock ticker symbol to compare against", Required: true},
				"count":  {Type: schema.Integer, Desc: "Number of similar stocks to return, 1 to 10", Required: false},
			}),
		},
	}
}

// Gateway executes tool calls against the analysis service. Execute never
// returns a Go error; every failure is reported in the ToolResult so the
// conversation can continue.
type Gateway struct {
	analysis *analysis.Service
	timeout  time.Duration
	log      zerolog.Logger
}

var _ contractx.ToolGateway = (*Gateway)(nil)

type Option func(*Gateway)

// WithTimeout bounds each tool execution.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func NewGateway(svc *analysis.Service, opts ...Option) (*Gateway, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: tool gateway requires an analysis service", contractx.ErrFatal)
	}
	g := &Gateway{
		analysis: svc,
		timeout:  defaultExecTimeout,
		log:      logx.Component("tool_gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gateway) Execute(ctx context.Context, call contractx.ToolCall) (result contractx.ToolResult) {
	result = contractx.ToolResult{CallID: call.ID, Name: call.Name}
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Str("tool", call.Name).Interface("panic", r).Msg("tool execution panicked")
			result.Err = "internal error while executing tool"
			result.Content = ""
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	switch call.Name {
	case NameFinancialAnalysis:
		result = g.runAnalysis(ctx, call)
	case NameStockComparison:
		result = g.runComparison(ctx, call)
	default:
		result.Err = fmt.Sprintf("unknown tool %q; available tools: %s, %s", call.Name, NameFinancialAnalysis, NameStockComparison)
		g.log.Warn().Str("tool", call.Name).Msg("rejected tool call outside allow list")
		return result
	}

	g.log.Info().
		Str("tool", call.Name).
		Dur("elapsed", time.Since(start)).
		Bool("failed", result.Failed()).
		Msg("tool executed")
	return result
}

func (g *Gateway) runAnalysis(ctx context.Context, call contractx.ToolCall) contractx.ToolResult {
	result := contractx.ToolResult{CallID: call.ID, Name: call.Name}

	ticker, err := stringArg(call.Args, "ticker")
	if err != nil {
		result.Err = err.Error()
		return result
	}

	analyzed, err := g.analysis.Analyze(ctx, ticker)
	if err != nil {
		result.Err = g.describeFailure(ctx, err, ticker)
		return result
	}
	result.Content = analyzed.Report
	return result
}

func (g *Gateway) runComparison(ctx context.Context, call contractx.ToolCall) contractx.ToolResult {
	result := contractx.ToolResult{CallID: call.ID, Name: call.Name}

	ticker, err := stringArg(call.Args, "ticker")
	if err != nil {
		result.Err = err.Error()
		return result
	}
	count, err := intArg(call.Args, "count", defaultCompareTopK, 1, maxCompareTopK)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	comparison, err := g.analysis.Compare(ctx, ticker, count)
	if err != nil {
		result.Err = g.describeFailure(ctx, err, ticker)
		return result
	}
	result.Content = comparison
	return result
}

func (g *Gateway) describeFailure(ctx context.Context, err error, ticker string) string {
	switch {
	// The deadline error may be flattened into the failure text by the
	// analysis layer, so the bounded context is checked as well.
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("%v: lookup for %s did not finish in time", contractx.ErrToolTimeout, ticker)
	case errors.Is(err, contractx.ErrValidation), errors.Is(err, contractx.ErrDataUnavailable):
		return err.Error()
	default:
		g.log.Warn().Err(err).Str("ticker", ticker).Msg("tool execution failed")
		return err.Error()
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: missing required argument %q", contractx.ErrValidation, key)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: argument %q must be a non-empty string", contractx.ErrValidation, key)
	}
	return strings.TrimSpace(s), nil
}

func intArg(args map[string]any, key string, fallback, min, max int) (int, error) {
	raw, ok := args[key]
	if !ok {
		return fallback, nil
	}
	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	default:
		return 0, fmt.Errorf("%w: argument %q must be an integer", contractx.ErrValidation, key)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%w: argument %q must be between %d and %d", contractx.ErrValidation, key, min, max)
	}
	return n, nil
}
