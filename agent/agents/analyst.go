package agents

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
)

// Analyst interprets retrieved reports for the user. It never calls tools;
// any tool call the model emits is discarded.
type Analyst struct {
	name      string
	directive string
	completer Completer
}

var _ contractx.Agent = (*Analyst)(nil)

func NewAnalyst(completer Completer, directive string) (*Analyst, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: analyst requires a completer", contractx.ErrFatal)
	}
	if strings.TrimSpace(directive) == "" {
		return nil, fmt.Errorf("%w: analyst directive is empty", contractx.ErrFatal)
	}
	return &Analyst{name: "analyst", directive: directive, completer: completer}, nil
}

func (a *Analyst) Name() string         { return a.name }
func (a *Analyst) Role() contractx.Role { return contractx.RoleAnalyst }

func (a *Analyst) Reply(ctx context.Context, transcript []contractx.Message) (contractx.Message, error) {
	out, err := a.completer.Complete(ctx, chatHistory(a.directive, a.name, transcript))
	if err != nil {
		return contractx.Message{}, err
	}

	content := strings.TrimSpace(out.Content)
	if content == "" {
		return contractx.Message{}, fmt.Errorf("%w: analyst reply is empty", contractx.ErrSchemaViolation)
	}

	return contractx.Message{
		Speaker: a.name,
		Role:    contractx.RoleAnalyst,
		Content: content,
	}, nil
}
