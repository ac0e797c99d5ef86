package llm

import (
	"context"
	"time"

	"github.com/mlukaszek/steel-llama/internal/ollama"
)

// EditFunc updates the in-flight reply message. Implementations sit in
// front of the platform API and its rate limiting.
type EditFunc func(ctx context.Context, content string) error

// Result is the outcome of one streamed response.
type Result struct {
	Thoughts           string
	Content            string
	Rendered           string
	ThinkingInProgress bool

	PromptTokens int
	EvalTokens   int
	Duration     time.Duration
}

// Produced reports whether the stream yielded any visible text.
func (r Result) Produced() bool {
	return r.Thoughts != "" || r.Content != ""
}

// Pump consumes one backend stream, feeds the parser and edits the
// placeholder at most once per EditDelay, with a final edit after the
// stream ends.
type Pump struct {
	Parser    *Parser
	EditDelay time.Duration
	Edit      EditFunc
}

// Run blocks until the stream ends, the context is cancelled, or the
// backend reports an error. On cancellation the last rendered state is
// left standing and ctx.Err is returned; on backend errors the partial
// result comes back alongside the error so the caller can decide what
// to surface.
func (p *Pump) Run(ctx context.Context, chunks <-chan ollama.Chunk, errc <-chan error) (Result, error) {
	delay := p.EditDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	var res Result
	lastShown := ""

loop:
	for {
		select {
		case <-ctx.Done():
			return p.snapshot(res), ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				break loop
			}
			p.Parser.Append(c.Text)
			if c.Done {
				res.PromptTokens = c.PromptTokens
				res.EvalTokens = c.EvalTokens
				res.Duration = c.TotalDuration
			}
		case <-ticker.C:
			rendered := p.Parser.RenderLimited(MaxMessageLen)
			if rendered == lastShown {
				continue
			}
			// Mid-stream edit failures are rate-limit noise; the next
			// tick retries with fresher text anyway.
			if err := p.Edit(ctx, rendered); err == nil {
				lastShown = rendered
			}
		}
	}

	// The sender buffers exactly one value before closing the chunk
	// channel, so this never blocks.
	if err := <-errc; err != nil {
		return p.snapshot(res), err
	}

	res = p.snapshot(res)
	if res.Produced() && res.Rendered != lastShown {
		if err := p.Edit(ctx, res.Rendered); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (p *Pump) snapshot(res Result) Result {
	res.Thoughts = p.Parser.Thoughts()
	res.Content = p.Parser.Content()
	res.Rendered = p.Parser.RenderLimited(MaxMessageLen)
	res.ThinkingInProgress = p.Parser.ThinkingInProgress()
	return res
}
