// Package prompts renders the agent system prompt.
package prompts

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// generateFromTemplate renders any prompt template with data.
func generateFromTemplate[T any](templateString string, data T) (string, error) {
	funcMap := template.FuncMap{
		"formatDetails": formatDetails,
		"formatTools":   formatTools,
		"formatFiles":   formatFiles,
	}

	tmpl, err := template.New("prompt").Funcs(funcMap).Parse(templateString)
	if err != nil {
		return "", err
	}
	var prompt bytes.Buffer
	if err := tmpl.Execute(&prompt, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(prompt.String()) + "\n", nil
}

// formatDetails formats session details as sorted key-value pairs within SessionDetails tags.
func formatDetails(details map[string]string) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString("<SessionDetails>\n")
	for _, k := range keys {
		builder.WriteString(fmt.Sprintf("%s: %s\n", k, details[k]))
	}
	builder.WriteString("</SessionDetails>")
	return builder.String()
}

func formatTools(tools []ToolSummary) string {
	var builder strings.Builder
	for _, t := range tools {
		builder.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Description))
	}
	return strings.TrimRight(builder.String(), "\n")
}

func formatFiles(files []string) string {
	if len(files) == 0 {
		return "(empty)"
	}
	return strings.Join(files, "\n")
}

type ToolSummary struct {
	Name        string
	Description string
}

// SystemPromptData contains data for the system prompt template.
type SystemPromptData struct {
	UserPrompt     string
	Tools          []ToolSummary
	MaxRounds      int
	SandboxRoot    string
	SandboxFiles   []string
	SessionDetails map[string]string
}

const SystemPromptTemplate = `
{{ .UserPrompt }}
{{ if .Tools }}
You can call the following tools:
{{ formatTools .Tools }}

Function Call Guidelines:
- Chain function calls when needed: after receiving results from one call, make additional calls if more information is required.
- Respond to the user only when you have enough information from function calls to give a good answer.
- Be efficient: there is a limit of {{ .MaxRounds }} consecutive rounds of function calls.
- Do not assume the user reads tool output. Answer them directly.
{{ end }}{{ if .SandboxRoot }}
You have a sandbox working directory ({{ .SandboxRoot }}). Paths passed to file tools are relative to it. Current files:
{{ formatFiles .SandboxFiles }}
{{ end }}
{{ formatDetails .SessionDetails }}`

// SystemPrompt creates the system prompt by applying the provided data.
func SystemPrompt(data SystemPromptData) (string, error) {
	return generateFromTemplate(SystemPromptTemplate, data)
}
