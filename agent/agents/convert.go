package agents

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
)

// chatHistory renders the shared transcript into chat-model messages. The
// agent's own turns become assistant messages; every other participant's turn
// is a user message tagged with the speaker so the model can follow the
// conversation.
func chatHistory(directive, self string, transcript []contractx.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(transcript)+1)
	out = append(out, schema.SystemMessage(directive))

	for _, msg := range transcript {
		content := msg.Content
		if msg.ToolResult != nil {
			if msg.ToolResult.Failed() {
				content = fmt.Sprintf("[tool %s failed] %s", msg.ToolResult.Name, msg.ToolResult.Err)
			} else {
				content = fmt.Sprintf("[tool %s result]\n%s", msg.ToolResult.Name, msg.ToolResult.Content)
			}
		} else if msg.ToolCall != nil {
			content = fmt.Sprintf("%s\n[requested tool %s with %s]", msg.Content, msg.ToolCall.Name, renderArgs(msg.ToolCall.Args))
		}

		if msg.Speaker == self {
			out = append(out, schema.AssistantMessage(content, nil))
			continue
		}
		out = append(out, schema.UserMessage(fmt.Sprintf("[%s] %s", msg.Speaker, content)))
	}
	return out
}

func renderArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	// json.Marshal sorts map keys, so the rendering is stable.
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
