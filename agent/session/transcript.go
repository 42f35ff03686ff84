package session

import (
	contractx "github.com/prachya-t/tickerchat/agent/contract"
)

// Transcript is the append-only ordered conversation log. Append order is the
// scheduling order; entries are never mutated in place or reordered.
type Transcript struct {
	messages []contractx.Message
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) Append(msg contractx.Message) {
	t.messages = append(t.messages, msg)
}

func (t *Transcript) Len() int {
	return len(t.messages)
}

func (t *Transcript) Last() (contractx.Message, bool) {
	if len(t.messages) == 0 {
		return contractx.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Messages returns a copy; callers cannot mutate the log through it.
func (t *Transcript) Messages() []contractx.Message {
	out := make([]contractx.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// PendingToolCall returns the most recent ToolCall that has not yet been
// answered by a ToolResult. The scheduler keeps at most one outstanding.
func (t *Transcript) PendingToolCall() (*contractx.ToolCall, bool) {
	answered := make(map[string]struct{}, 2)
	for i := len(t.messages) - 1; i >= 0; i-- {
		msg := t.messages[i]
		if msg.ToolResult != nil {
			answered[msg.ToolResult.CallID] = struct{}{}
		}
		if msg.ToolCall == nil {
			continue
		}
		if _, ok := answered[msg.ToolCall.ID]; ok {
			return nil, false
		}
		call := *msg.ToolCall
		return &call, true
	}
	return nil, false
}
