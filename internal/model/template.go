package model

import (
	"strings"
	"text/template"

	"github.com/mlukaszek/steel-llama/internal/ollama"
)

// PromptTemplate renders a message list into a raw prompt string ending with
// the generation preamble, for models driven through the generate endpoint.
type PromptTemplate struct {
	tmpl *template.Template
}

const chatmlText = `{{range .Messages}}<|im_start|>{{.Role}}
{{.Content}}<|im_end|>
{{end}}<|im_start|>assistant
`

var builtinTemplates = map[string]*template.Template{
	"chatml": template.Must(template.New("chatml").Parse(chatmlText)),
}

// LookupTemplate returns the built-in prompt template with the given name.
func LookupTemplate(name string) (*PromptTemplate, bool) {
	tmpl, ok := builtinTemplates[name]
	if !ok {
		return nil, false
	}
	return &PromptTemplate{tmpl: tmpl}, true
}

func (p *PromptTemplate) Render(msgs []ollama.Message) (string, error) {
	var b strings.Builder
	data := struct{ Messages []ollama.Message }{Messages: msgs}
	if err := p.tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
