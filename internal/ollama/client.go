package ollama

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Client wraps the Ollama HTTP API behind channel-based streaming calls.
// The backend address comes from OLLAMA_HOST (default http://127.0.0.1:11434).
type Client struct {
	api *api.Client
}

func New() (*Client, error) {
	c, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}
	return &Client{api: c}, nil
}

// Ping reports whether the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return mapErr(c.api.Heartbeat(ctx))
}

// Version returns the backend's version string, for boot logging.
func (c *Client) Version(ctx context.Context) (string, error) {
	v, err := c.api.Version(ctx)
	if err != nil {
		return "", mapErr(err)
	}
	return v, nil
}

// List returns the installed models.
func (c *Client) List(ctx context.Context) ([]Model, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	models := make([]Model, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, Model{
			Name:              m.Model,
			Size:              m.Size,
			ParameterSize:     m.Details.ParameterSize,
			QuantizationLevel: m.Details.QuantizationLevel,
		})
	}
	return models, nil
}

// Show returns the model-info map for one model. Callers scan it for the
// context-length key, whose exact name varies by model family.
func (c *Client) Show(ctx context.Context, model string) (map[string]any, error) {
	resp, err := c.api.Show(ctx, &api.ShowRequest{Model: model})
	if err != nil {
		return nil, mapErr(err)
	}
	return resp.ModelInfo, nil
}

// ChatStream starts a streaming chat call. Chunks arrive on the first channel
// until it closes; the second channel then yields exactly one value, nil on
// clean completion.
func (c *Client) ChatStream(ctx context.Context, model string, msgs []Message) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errc := make(chan error, 1)

	req := &api.ChatRequest{
		Model:  model,
		Stream: boolPtr(true),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, api.Message{Role: m.Role, Content: m.Content})
	}

	go func() {
		defer close(chunks)
		err := c.api.Chat(ctx, req, func(r api.ChatResponse) error {
			return deliver(ctx, chunks, Chunk{
				Text:          r.Message.Content,
				Done:          r.Done,
				PromptTokens:  r.PromptEvalCount,
				EvalTokens:    r.EvalCount,
				TotalDuration: r.TotalDuration,
			})
		})
		errc <- mapErr(err)
	}()
	return chunks, errc
}

// GenerateStream starts a streaming raw-generate call. The prompt is sent
// verbatim; no prompt template is applied by the backend.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errc := make(chan error, 1)

	req := &api.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Raw:    true,
		Stream: boolPtr(true),
	}

	go func() {
		defer close(chunks)
		err := c.api.Generate(ctx, req, func(r api.GenerateResponse) error {
			return deliver(ctx, chunks, Chunk{
				Text:          r.Response,
				Done:          r.Done,
				PromptTokens:  r.PromptEvalCount,
				EvalTokens:    r.EvalCount,
				TotalDuration: r.TotalDuration,
			})
		})
		errc <- mapErr(err)
	}()
	return chunks, errc
}

func deliver(ctx context.Context, out chan<- Chunk, ch Chunk) error {
	select {
	case out <- ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func boolPtr(b bool) *bool { return &b }

// mapErr sorts backend failures into the two user-visible kinds. Cancellation
// passes through untouched so callers can tell an abort from a backend fault.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrUnavailable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrUnavailable
	}
	return &BackendError{Detail: err.Error()}
}
