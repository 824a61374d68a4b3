package agentloop

import (
	"strings"

	"github.com/martinemde/vox/unifiedllm"
)

// DefaultSystemPrompt is the base instruction sent ahead of every history.
const DefaultSystemPrompt = "You are a helpful assistant. Only use the functions you have been provided with."

// defaultContextWindow is assumed for models missing from the catalog.
const defaultContextWindow = 128000

// ProviderProfile selects the model a session talks to and how it is
// instructed.
type ProviderProfile struct {
	Provider      string
	Model         string
	Instructions  string
	ContextWindow int
}

// NewProviderProfile resolves model through the catalog, filling in the
// canonical id, provider and context window when it is known. An explicit
// provider always wins.
func NewProviderProfile(provider, model string) ProviderProfile {
	p := ProviderProfile{
		Provider:      provider,
		Model:         model,
		Instructions:  DefaultSystemPrompt,
		ContextWindow: defaultContextWindow,
	}
	if info := unifiedllm.GetModelInfo(model); info != nil {
		p.Model = info.ID
		if p.Provider == "" {
			p.Provider = info.Provider
		}
		if info.ContextWindow > 0 {
			p.ContextWindow = info.ContextWindow
		}
	}
	return p
}

// BuildSystemPrompt joins the instructions with the environment block for
// a workspace rooted at root.
func (p ProviderProfile) BuildSystemPrompt(root string) string {
	var sb strings.Builder
	instructions := p.Instructions
	if instructions == "" {
		instructions = DefaultSystemPrompt
	}
	sb.WriteString(instructions)
	sb.WriteString("\n\n")
	sb.WriteString(BuildEnvironmentContext(root, p.Model))
	return sb.String()
}
