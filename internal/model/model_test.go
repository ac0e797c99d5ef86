package model

import (
	"testing"

	"github.com/mlukaszek/steel-llama/internal/config"
	"github.com/mlukaszek/steel-llama/internal/ollama"
)

func TestSplitName(t *testing.T) {
	cases := []struct {
		full string
		name string
		tag  string
		ok   bool
	}{
		{full: "llama3:8b", name: "llama3", tag: "8b", ok: true},
		{full: "llama3", name: "llama3", tag: "", ok: true},
		{full: "", name: "", tag: "", ok: false},
		{full: "a:b:c", name: "", tag: "", ok: false},
	}
	for _, tc := range cases {
		name, tag, ok := SplitName(tc.full)
		if name != tc.name || tag != tc.tag || ok != tc.ok {
			t.Errorf("SplitName(%q) = (%q, %q, %v); want (%q, %q, %v)",
				tc.full, name, tag, ok, tc.name, tc.tag, tc.ok)
		}
	}
}

func TestListEntry(t *testing.T) {
	cases := []struct {
		model ChatModel
		want  string
	}{
		{
			model: ChatModel{Name: "qwen3-8b", Tag: "latest", ParameterSize: "8.2B", Quantization: "Q4_K_M", ContextLength: 32768},
			want:  "- **qwen3-8b:latest** - P8.2B, QQ4_K_M, C32768",
		},
		{
			model: ChatModel{Name: "llama3", ParameterSize: "8B", Quantization: "Q3", ContextLength: 20480},
			want:  "- **llama3** - P8B, QQ3, C20480",
		},
		{
			model: ChatModel{Name: "mystery", Tag: "latest", ContextLength: UnknownContextLength},
			want:  "- **mystery:latest** - PUnknown, QUnknown, CUnknown",
		},
	}
	for _, tc := range cases {
		if got := tc.model.ListEntry(); got != tc.want {
			t.Errorf("ListEntry() = %q; want %q", got, tc.want)
		}
	}
}

func TestNewChatModelResolution(t *testing.T) {
	backendModel := ollama.Model{
		Name:              "mistral:latest",
		Size:              5 << 30,
		ParameterSize:     "7B",
		QuantizationLevel: "Q4",
	}

	// Explicit limit beats the backend-reported window.
	cm := newChatModel(backendModel, config.ModelConfig{ContextLimit: 4096}, 10240)
	if cm.Name != "mistral" || cm.Tag != "latest" {
		t.Errorf("split = %q:%q", cm.Name, cm.Tag)
	}
	if cm.Full != "mistral:latest" {
		t.Errorf("full = %q", cm.Full)
	}
	if cm.ContextLength != 4096 {
		t.Errorf("context = %d, want config override", cm.ContextLength)
	}
	if cm.Size == UnknownField {
		t.Errorf("size should be humanized, got %q", cm.Size)
	}

	// No override: backend value.
	cm = newChatModel(backendModel, config.ModelConfig{}, 10240)
	if cm.ContextLength != 10240 {
		t.Errorf("context = %d, want backend value", cm.ContextLength)
	}

	// Neither: sentinel.
	cm = newChatModel(backendModel, config.ModelConfig{}, UnknownContextLength)
	if cm.ContextLength != UnknownContextLength {
		t.Errorf("context = %d, want sentinel", cm.ContextLength)
	}
}
