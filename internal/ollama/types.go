package ollama

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks connection-level failures at the backend boundary.
// Handlers render it as a fixed "try again later" message.
var ErrUnavailable = errors.New("LLM backend unavailable")

// BackendError is any backend failure that is not a connectivity problem.
type BackendError struct {
	Detail string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error: %s", e.Detail)
}

// Message is one turn sent to the chat endpoint.
type Message struct {
	Role    string
	Content string
}

// Chunk is one streamed fragment of a response. Metrics fields are only
// populated on the final chunk (Done true).
type Chunk struct {
	Text          string
	Done          bool
	PromptTokens  int
	EvalTokens    int
	TotalDuration time.Duration
}

// Model is one installed model as reported by the backend's tag listing.
type Model struct {
	Name              string // full name including tag, e.g. "qwen3-8b:latest"
	Size              int64  // bytes on disk
	ParameterSize     string // e.g. "8.2B"
	QuantizationLevel string // e.g. "Q4_K_M"
}
