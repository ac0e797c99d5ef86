package model

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mlukaszek/steel-llama/internal/config"
	"github.com/mlukaszek/steel-llama/internal/ollama"
)

const (
	// UnknownField substitutes for model detail fields the backend did not report.
	UnknownField = "Unknown"
	// UnknownContextLength marks a model whose context window could not be determined.
	UnknownContextLength = -1
)

// ChatModel is one installed model joined with its configuration.
type ChatModel struct {
	Full          string // full backend name, e.g. "qwen3-8b:latest"
	Name          string
	Tag           string // empty when the backend name carries no tag
	Size          string // human-readable size
	ParameterSize string
	Quantization  string
	ContextLength int // effective window: config override, else backend-reported, else UnknownContextLength
	Config        config.ModelConfig
}

// SplitName splits a full model name on its colon into name and tag.
// ok is false for empty names and names with more than one colon.
func SplitName(full string) (name, tag string, ok bool) {
	if full == "" {
		return "", "", false
	}
	parts := strings.Split(full, ":")
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}

// ListEntry renders the model for the list-models reply.
func (m ChatModel) ListEntry() string {
	name := m.Name
	if m.Tag != "" {
		name += ":" + m.Tag
	}
	return fmt.Sprintf("- **%s** - P%s, Q%s, C%s",
		name, orUnknown(m.ParameterSize), orUnknown(m.Quantization), m.contextDisplay())
}

func (m ChatModel) contextDisplay() string {
	if m.ContextLength == UnknownContextLength {
		return UnknownField
	}
	return fmt.Sprintf("%d", m.ContextLength)
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownField
	}
	return s
}

func newChatModel(m ollama.Model, mc config.ModelConfig, backendCtx int) ChatModel {
	cm := ChatModel{
		Full:          m.Name,
		Name:          m.Name,
		Size:          UnknownField,
		ParameterSize: m.ParameterSize,
		Quantization:  m.QuantizationLevel,
		ContextLength: backendCtx,
		Config:        mc,
	}
	if name, tag, ok := SplitName(m.Name); ok {
		cm.Name, cm.Tag = name, tag
	}
	if m.Size > 0 {
		cm.Size = humanize.IBytes(uint64(m.Size))
	}
	if mc.ContextLimit > 0 {
		cm.ContextLength = mc.ContextLimit
	}
	return cm
}
