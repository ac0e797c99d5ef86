package model

import (
	"testing"

	"github.com/mlukaszek/steel-llama/internal/ollama"
)

func TestChatMLRender(t *testing.T) {
	tmpl, ok := LookupTemplate("chatml")
	if !ok {
		t.Fatal("chatml template missing")
	}

	got, err := tmpl.Render([]ollama.Message{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "Hi there"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := "<|im_start|>system\nYou are helpful.<|im_end|>\n" +
		"<|im_start|>user\nHi there<|im_end|>\n" +
		"<|im_start|>assistant\n"
	if got != want {
		t.Errorf("Render =\n%q\nwant\n%q", got, want)
	}
}

func TestLookupTemplateUnknown(t *testing.T) {
	if _, ok := LookupTemplate("alpaca"); ok {
		t.Error("LookupTemplate accepted an unknown name")
	}
}
