package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
	toolx "github.com/prachya-t/tickerchat/agent/tool"
	logx "github.com/prachya-t/tickerchat/pkg/logger"
)

// Researcher is the only agent allowed to request tool executions. Every tool
// call the model emits is vetted before it reaches the transcript: the name
// must be allow-listed, the arguments must parse, and the same lookup must
// not already be answered for the current human request.
type Researcher struct {
	name      string
	directive string
	completer Completer
	allowed   map[string]struct{}
	log       zerolog.Logger
}

var _ contractx.Agent = (*Researcher)(nil)

func NewResearcher(completer Completer, directive string) (*Researcher, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: researcher requires a completer", contractx.ErrFatal)
	}
	if strings.TrimSpace(directive) == "" {
		return nil, fmt.Errorf("%w: researcher directive is empty", contractx.ErrFatal)
	}
	allowed := make(map[string]struct{})
	for _, info := range toolx.Infos() {
		allowed[info.Name] = struct{}{}
	}
	return &Researcher{
		name:      "researcher",
		directive: directive,
		completer: completer,
		allowed:   allowed,
		log:       logx.Component("researcher"),
	}, nil
}

func (r *Researcher) Name() string         { return r.name }
func (r *Researcher) Role() contractx.Role { return contractx.RoleResearcher }

func (r *Researcher) Reply(ctx context.Context, transcript []contractx.Message) (contractx.Message, error) {
	out, err := r.completer.Complete(ctx, chatHistory(r.directive, r.name, transcript))
	if err != nil {
		return contractx.Message{}, err
	}

	msg := contractx.Message{
		Speaker: r.name,
		Role:    contractx.RoleResearcher,
		Content: strings.TrimSpace(out.Content),
	}

	if len(out.ToolCalls) > 0 {
		call, err := r.vetToolCall(out.ToolCalls[0], transcript)
		if err != nil {
			r.log.Warn().Err(err).Msg("dropping tool call")
		} else {
			msg.ToolCall = call
		}
	}

	if msg.Content == "" && msg.ToolCall == nil {
		return contractx.Message{}, fmt.Errorf("%w: researcher reply is empty", contractx.ErrSchemaViolation)
	}
	if msg.Content == "" {
		msg.Content = fmt.Sprintf("Requesting data via %s.", msg.ToolCall.Name)
	}
	return msg, nil
}

func (r *Researcher) vetToolCall(call schema.ToolCall, transcript []contractx.Message) (*contractx.ToolCall, error) {
	name := strings.TrimSpace(call.Function.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
	}
	if _, ok := r.allowed[name]; !ok {
		return nil, fmt.Errorf("%w: tool %q is not allowed", contractx.ErrSchemaViolation, name)
	}

	args := map[string]any{}
	if trimmed := strings.TrimSpace(call.Function.Arguments); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return nil, fmt.Errorf("%w: invalid tool args for %s: %v", contractx.ErrSchemaViolation, name, err)
		}
	}

	rawTicker, _ := args["ticker"].(string)
	ticker, err := contractx.NormalizeTicker(rawTicker)
	if err != nil {
		return nil, err
	}
	args["ticker"] = ticker

	if !r.allowLookup(transcript, name, ticker) {
		return nil, fmt.Errorf("%w: %s for %s already answered", contractx.ErrSchemaViolation, name, ticker)
	}

	id := call.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &contractx.ToolCall{ID: id, Name: name, Args: args}, nil
}

// allowLookup permits a lookup only when the human has spoken since the last
// successful result for the same tool and ticker. This stops the model from
// re-running a lookup it already has the answer to.
func (r *Researcher) allowLookup(transcript []contractx.Message, name, ticker string) bool {
	answered := false
	requested := map[string]bool{}
	for _, msg := range transcript {
		if msg.Role == contractx.RoleCoordinator && !msg.Auto && msg.ToolCall == nil && msg.ToolResult == nil {
			answered = false
		}
		if msg.ToolCall != nil && msg.ToolCall.Name == name {
			if arg, _ := msg.ToolCall.Args["ticker"].(string); arg == ticker {
				requested[msg.ToolCall.ID] = true
			}
		}
		if msg.ToolResult != nil && requested[msg.ToolResult.CallID] && !msg.ToolResult.Failed() {
			answered = true
		}
	}
	return !answered
}
