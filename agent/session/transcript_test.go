package session

import (
	"testing"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
)

func TestTranscriptMessagesReturnsCopy(t *testing.T) {
	t.Parallel()

	tr := NewTranscript()
	tr.Append(contractx.Message{Speaker: "coordinator", Content: "hello"})

	got := tr.Messages()
	got[0].Content = "mutated"

	fresh := tr.Messages()
	if fresh[0].Content != "hello" {
		t.Fatalf("transcript mutated through returned slice: %q", fresh[0].Content)
	}
}

func TestTranscriptPendingToolCall(t *testing.T) {
	t.Parallel()

	tr := NewTranscript()
	if _, pending := tr.PendingToolCall(); pending {
		t.Fatal("empty transcript must have no pending call")
	}

	tr.Append(contractx.Message{
		Speaker:  "researcher",
		ToolCall: &contractx.ToolCall{ID: "c1", Name: "get_financial_analysis"},
	})
	call, pending := tr.PendingToolCall()
	if !pending {
		t.Fatal("expected pending call")
	}
	if call.ID != "c1" {
		t.Fatalf("pending call id = %q", call.ID)
	}

	tr.Append(contractx.Message{
		Speaker:    "coordinator",
		ToolResult: &contractx.ToolResult{CallID: "c1", Name: "get_financial_analysis", Content: "ok"},
	})
	if _, pending := tr.PendingToolCall(); pending {
		t.Fatal("answered call must not be pending")
	}
}

func TestTranscriptPendingToolCallFailedResultStillAnswers(t *testing.T) {
	t.Parallel()

	tr := NewTranscript()
	tr.Append(contractx.Message{
		Speaker:  "researcher",
		ToolCall: &contractx.ToolCall{ID: "c1", Name: "get_financial_analysis"},
	})
	tr.Append(contractx.Message{
		Speaker:    "coordinator",
		ToolResult: &contractx.ToolResult{CallID: "c1", Name: "get_financial_analysis", Err: "ticker missing"},
	})
	if _, pending := tr.PendingToolCall(); pending {
		t.Fatal("failed result must still answer the call")
	}
}
