package document

import (
	"fmt"
	"os"
	"strings"

	"github.com/c360studio/docroute/task"
)

// Model prompt formats.
const (
	FormatChat     = "chat"
	FormatInstruct = "instruct"
)

// PromptContext bundles the selected sections and schema reference rendered
// into a task template.
type PromptContext struct {
	Sections        []SelectionResult
	SchemaReference string
	ModelFormat     string // "chat" or "instruct"
}

// PromptRenderer renders task prompts from on-disk templates. Templates use
// {{context}} and {{schema_reference}} placeholders.
type PromptRenderer struct {
	systemPrompt string
	templates    map[task.Type]string
}

// NewPromptRenderer loads the system prompt and per-task templates from disk.
func NewPromptRenderer(systemPromptPath string, templatePaths map[task.Type]string) (*PromptRenderer, error) {
	system, err := os.ReadFile(systemPromptPath)
	if err != nil {
		return nil, fmt.Errorf("read system prompt: %w", err)
	}

	templates := make(map[task.Type]string, len(templatePaths))
	for taskType, path := range templatePaths {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template for %s: %w", taskType, err)
		}
		templates[taskType] = string(body)
	}

	return &PromptRenderer{systemPrompt: string(system), templates: templates}, nil
}

// Render produces the final prompt text for a task.
func (r *PromptRenderer) Render(taskType task.Type, ctx PromptContext) (string, error) {
	template, ok := r.templates[taskType]
	if !ok {
		return "", fmt.Errorf("no template for task %s", taskType)
	}

	var blocks []string
	for _, sel := range ctx.Sections {
		blocks = append(blocks, sel.Section.DisplayTitle()+":\n"+sel.Section.Text())
	}
	contextText := strings.Join(blocks, "\n\n")

	body := strings.ReplaceAll(template, "{{context}}", contextText)
	body = strings.ReplaceAll(body, "{{schema_reference}}", ctx.SchemaReference)

	if ctx.ModelFormat == FormatChat {
		return fmt.Sprintf("%s\n\nUser:\n%s\n\nAssistant:", r.systemPrompt, body), nil
	}
	return fmt.Sprintf("%s\n\n%s", r.systemPrompt, body), nil
}
