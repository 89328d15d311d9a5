package openai

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptSpec is one prompt and its sampling parameters
type PromptSpec struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

// PromptConfig holds the prompts used by the extractor
type PromptConfig struct {
	InvoiceExtraction  PromptSpec `yaml:"invoice_extraction"`
	ContractExtraction PromptSpec `yaml:"contract_extraction"`
}

// PromptData is the template input for user prompts
type PromptData struct {
	FileName  string
	Converted bool
}

// LoadPrompts loads prompt configuration from a YAML file. An empty path
// returns the built-in prompts.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	if promptsPath == "" {
		return DefaultPrompts()
	}
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return ParsePrompts(data)
}

// DefaultPrompts returns the built-in prompts
func DefaultPrompts() (*PromptConfig, error) {
	return ParsePrompts(defaultPrompts)
}

// ParsePrompts decodes YAML prompt configuration and checks every template parses
func ParsePrompts(data []byte) (*PromptConfig, error) {
	var prompts PromptConfig
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	for name, spec := range map[string]PromptSpec{
		"invoice_extraction":  prompts.InvoiceExtraction,
		"contract_extraction": prompts.ContractExtraction,
	} {
		if spec.System == "" || spec.UserTemplate == "" {
			return nil, fmt.Errorf("prompt %s: system and user_template are required", name)
		}
		if _, err := template.New(name).Parse(spec.UserTemplate); err != nil {
			return nil, fmt.Errorf("prompt %s: %w", name, err)
		}
	}

	return &prompts, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
