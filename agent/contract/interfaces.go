package contract

import "context"

// Agent produces the next utterance for its role given the transcript so far.
// Reply must honor ctx cancellation; the orchestrator bounds checkpoint waits
// through ctx deadlines.
type Agent interface {
	Name() string
	Role() Role
	Reply(ctx context.Context, transcript []Message) (Message, error)
}

// ToolGateway executes a single agent-requested function call. It always
// returns a terminating ToolResult; every failure mode is converted into the
// result's Err field, never a panic or an escaping error.
type ToolGateway interface {
	Execute(ctx context.Context, call ToolCall) ToolResult
}

// ToolApprover is implemented by the human-controlled role so the human can
// veto a pending tool execution. ErrTerminated stops the session; any other
// outcome (including a timed-out wait) lets the execution proceed.
type ToolApprover interface {
	ApproveExecution(ctx context.Context, call ToolCall) error
}

// VectorStore is the lookup side of the pre-ingested financial record store.
type VectorStore interface {
	Lookup(ctx context.Context, ticker string) (*FinancialRecord, error)
	FindSimilar(ctx context.Context, ticker string, topK int) ([]SimilarStock, error)
}

// Cache persists a best-effort copy of a finished analysis. Errors are
// returned to the caller, which is expected to absorb them.
type Cache interface {
	Put(ctx context.Context, entry CacheEntry) error
}

// HumanInput is the blocking human checkpoint boundary. Prompt returns the
// raw line the human entered and must honor ctx cancellation.
type HumanInput interface {
	Prompt(ctx context.Context, prompt string) (string, error)
}
