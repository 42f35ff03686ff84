package agents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
	toolx "github.com/prachya-t/tickerchat/agent/tool"
)

const checkpointPrompt = "You: "

var terminationWords = map[string]struct{}{
	"exit": {},
	"quit": {},
	"stop": {},
}

// Coordinator relays human input into the conversation. It owns session
// termination, turns recognisable ticker requests into tool calls, and vets
// pending tool executions.
type Coordinator struct {
	name  string
	human contractx.HumanInput
}

var (
	_ contractx.Agent        = (*Coordinator)(nil)
	_ contractx.ToolApprover = (*Coordinator)(nil)
)

func NewCoordinator(human contractx.HumanInput) (*Coordinator, error) {
	if human == nil {
		return nil, fmt.Errorf("%w: coordinator requires a human input source", contractx.ErrFatal)
	}
	return &Coordinator{name: "coordinator", human: human}, nil
}

func (c *Coordinator) Name() string         { return c.name }
func (c *Coordinator) Role() contractx.Role { return contractx.RoleCoordinator }

// Reply blocks on human input until the caller's deadline. Termination words
// end the session; empty input or a lapsed deadline reports a checkpoint
// timeout so the session can decide whether to continue on its own.
func (c *Coordinator) Reply(ctx context.Context, transcript []contractx.Message) (contractx.Message, error) {
	input, err := c.human.Prompt(ctx, checkpointPrompt)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return contractx.Message{}, fmt.Errorf("%w: no input before deadline", contractx.ErrCheckpointTimeout)
		case errors.Is(err, context.Canceled):
			// Cancellation is a shutdown, not a lapsed checkpoint.
			return contractx.Message{}, err
		default:
			return contractx.Message{}, fmt.Errorf("%w: read human input: %v", contractx.ErrFatal, err)
		}
	}

	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return contractx.Message{}, fmt.Errorf("%w: empty input", contractx.ErrCheckpointTimeout)
	}
	if _, ok := terminationWords[strings.ToLower(trimmed)]; ok {
		return contractx.Message{}, contractx.ErrTerminated
	}

	msg := contractx.Message{
		Speaker: c.name,
		Role:    contractx.RoleCoordinator,
		Content: trimmed,
	}
	if call, ok := extractToolCall(trimmed, transcript); ok {
		msg.ToolCall = call
	}
	return msg, nil
}

// ApproveExecution gives the human a chance to cancel a pending tool call.
// Any input other than a termination word lets the call proceed, as does a
// lapsed deadline.
func (c *Coordinator) ApproveExecution(ctx context.Context, call contractx.ToolCall) error {
	prompt := fmt.Sprintf("About to run %s %s. Press Enter to continue or type exit to stop: ", call.Name, renderArgs(call.Args))
	input, err := c.human.Prompt(ctx, prompt)
	if err != nil {
		// No answer means consent.
		return nil
	}
	if _, ok := terminationWords[strings.ToLower(strings.TrimSpace(input))]; ok {
		return contractx.ErrTerminated
	}
	return nil
}

var (
	dollarTickerPattern  = regexp.MustCompile(`\$([A-Za-z][A-Za-z0-9.]{0,9})\b`)
	keywordTickerPattern = regexp.MustCompile(`(?i)\b(?:analyze|analyse|about|check|look at|look up)\s+([A-Za-z][A-Za-z0-9.]{0,9})\b`)
	upperTokenPattern    = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,5}(?:\.[A-Z]{1,4})?\b`)
	comparisonPattern    = regexp.MustCompile(`(?i)\b(similar|comparable|compare|peers?|alternatives?)\b`)

	// Common uppercase words that look like tickers but are not.
	tickerStopwords = map[string]struct{}{
		"I": {}, "A": {}, "OK": {}, "THE": {}, "PE": {}, "EPS": {}, "ROE": {},
		"EV": {}, "EBITDA": {}, "USD": {}, "ETF": {}, "CEO": {}, "AI": {},
		"PLEASE": {}, "BUY": {}, "SELL": {}, "HOLD": {}, "NOW": {}, "YES": {}, "NO": {},
	}
)

// ExtractTicker pulls the most likely ticker symbol out of free-form text.
// It prefers an explicit $SYM form, then a keyword phrase like "analyze X",
// then any remaining uppercase token that is not a common word.
func ExtractTicker(text string) (string, bool) {
	if m := dollarTickerPattern.FindStringSubmatch(text); m != nil {
		if ticker, err := contractx.NormalizeTicker(m[1]); err == nil {
			return ticker, true
		}
	}
	if m := keywordTickerPattern.FindStringSubmatch(text); m != nil {
		candidate := strings.ToUpper(m[1])
		if _, stop := tickerStopwords[candidate]; !stop {
			if ticker, err := contractx.NormalizeTicker(candidate); err == nil {
				return ticker, true
			}
		}
	}
	for _, token := range upperTokenPattern.FindAllString(text, -1) {
		if _, stop := tickerStopwords[token]; stop {
			continue
		}
		if ticker, err := contractx.NormalizeTicker(token); err == nil {
			return ticker, true
		}
	}
	return "", false
}

// extractToolCall maps a human utterance onto a tool request when it names a
// ticker. Comparison phrasing selects the similarity tool; anything else
// requests a full analysis.
func extractToolCall(text string, transcript []contractx.Message) (*contractx.ToolCall, bool) {
	ticker, ok := ExtractTicker(text)
	if !ok {
		return nil, false
	}

	name := toolx.NameFinancialAnalysis
	if comparisonPattern.MatchString(text) {
		name = toolx.NameStockComparison
	}
	if hasRecentResult(transcript, name, ticker) {
		return nil, false
	}

	return &contractx.ToolCall{
		ID:   uuid.NewString(),
		Name: name,
		Args: map[string]any{"ticker": ticker},
	}, true
}

// hasRecentResult reports whether a successful result for the same tool and
// ticker already appears in the transcript, so repeating the question does
// not repeat the lookup.
func hasRecentResult(transcript []contractx.Message, name, ticker string) bool {
	requested := map[string]bool{}
	for _, msg := range transcript {
		if msg.ToolCall != nil && msg.ToolCall.Name == name {
			if arg, _ := msg.ToolCall.Args["ticker"].(string); arg == ticker {
				requested[msg.ToolCall.ID] = true
			}
		}
		if msg.ToolResult != nil && requested[msg.ToolResult.CallID] && !msg.ToolResult.Failed() {
			return true
		}
	}
	return false
}
