// Package agents holds the role-bound conversation participants: the
// coordinator relaying human input, the analyst interpreting reports, and the
// researcher requesting data through tools.
package agents

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
)

// Completer is the minimal chat-model surface the LLM-backed agents need.
// Tests substitute scripted implementations.
type Completer interface {
	Complete(ctx context.Context, messages []*schema.Message) (*schema.Message, error)
}

type modelCompleter struct {
	model einomodel.BaseChatModel
}

// NewModelCompleter wraps an eino chat model as a Completer.
func NewModelCompleter(m einomodel.BaseChatModel) Completer {
	return &modelCompleter{model: m}
}

func (c *modelCompleter) Complete(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	out, err := c.model.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: model returned no message", contractx.ErrSchemaViolation)
	}
	return out, nil
}
