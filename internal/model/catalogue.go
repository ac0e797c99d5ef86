package model

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mlukaszek/steel-llama/internal/config"
	"github.com/mlukaszek/steel-llama/internal/ollama"
)

// showConcurrency bounds parallel model-info fetches during a refresh.
const showConcurrency = 4

// Backend is the slice of the LLM client the catalogue needs.
type Backend interface {
	List(ctx context.Context) ([]ollama.Model, error)
	Show(ctx context.Context, model string) (map[string]any, error)
}

// Catalogue joins the backend's installed models with the configured
// ModelConfigs. Models without a config are not exposed.
//
// The catalogue holds a snapshot that Refresh replaces atomically; lookups
// serve from the snapshot, populating it on first use.
type Catalogue struct {
	backend Backend
	models  config.ModelsConfig

	mu       sync.RWMutex
	snapshot []ChatModel
	primed   bool
}

func NewCatalogue(b Backend, models config.ModelsConfig) *Catalogue {
	return &Catalogue{backend: b, models: models}
}

// Refresh queries the backend and rebuilds the snapshot. The returned slice
// preserves the backend's listing order.
func (c *Catalogue) Refresh(ctx context.Context) ([]ChatModel, error) {
	installed, err := c.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	built := make([]*ChatModel, len(installed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(showConcurrency)
	for i, m := range installed {
		mc, ok := c.models.ForModel(m.Name)
		if !ok {
			continue
		}
		g.Go(func() error {
			info, err := c.backend.Show(gctx, m.Name)
			if err != nil {
				return err
			}
			cm := newChatModel(m, mc, findContextLength(info))
			built[i] = &cm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := make([]ChatModel, 0, len(built))
	for _, cm := range built {
		if cm != nil {
			kept = append(kept, *cm)
		}
	}

	c.mu.Lock()
	c.snapshot = kept
	c.primed = true
	c.mu.Unlock()
	return kept, nil
}

// Get returns the first catalogued model whose full name starts with prefix.
func (c *Catalogue) Get(ctx context.Context, prefix string) (ChatModel, bool, error) {
	models, err := c.current(ctx)
	if err != nil {
		return ChatModel{}, false, err
	}
	for _, m := range models {
		if strings.HasPrefix(m.Full, prefix) {
			return m, true, nil
		}
	}
	return ChatModel{}, false, nil
}

// Exists reports whether a model with exactly this full name is catalogued.
func (c *Catalogue) Exists(ctx context.Context, fullName string) (bool, error) {
	models, err := c.current(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m.Full == fullName {
			return true, nil
		}
	}
	return false, nil
}

func (c *Catalogue) current(ctx context.Context) ([]ChatModel, error) {
	c.mu.RLock()
	snapshot, primed := c.snapshot, c.primed
	c.mu.RUnlock()
	if primed {
		return snapshot, nil
	}
	return c.Refresh(ctx)
}

// findContextLength scans model info for the family-specific context length
// key (e.g. "llama.context_length").
func findContextLength(info map[string]any) int {
	for key, value := range info {
		if !strings.HasSuffix(key, "context_length") {
			continue
		}
		switch n := value.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		case uint64:
			return int(n)
		}
	}
	return UnknownContextLength
}
