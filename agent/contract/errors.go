package contract

import "errors"

var (
	// ErrValidation covers malformed user input, above all bad tickers. It is
	// always recoverable and rendered back as conversational guidance.
	ErrValidation = errors.New("validation failed")

	// ErrDataUnavailable signals a vector-store miss or failure. The analysis
	// pipeline never fabricates data; the whole request fails with this.
	ErrDataUnavailable = errors.New("financial data unavailable")

	// ErrCacheWrite stays inside the analysis service: logged, never surfaced.
	ErrCacheWrite = errors.New("cache write failed")

	// ErrToolTimeout is carried inside an error ToolResult so the orchestrator
	// always receives a terminating response.
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrFatal marks a corrupted role graph or session state. It is the only
	// condition that aborts a session instead of becoming transcript content.
	ErrFatal = errors.New("conversation state corrupt")

	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")

	// ErrCheckpointTimeout reports an expired or empty human checkpoint; the
	// session answers it with at most one default auto-reply.
	ErrCheckpointTimeout = errors.New("human checkpoint timed out")

	// ErrTerminated reports the human's explicit terminal token.
	ErrTerminated = errors.New("session terminated by user")
)
