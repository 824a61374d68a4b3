package agentloop

import (
	"strings"
	"testing"
)

func TestNewProviderProfile(t *testing.T) {
	tests := []struct {
		name         string
		provider     string
		model        string
		wantProvider string
		wantModel    string
		wantWindow   int
	}{
		{"catalog model", "", "gpt-4o", "openai", "gpt-4o", 128000},
		{"alias resolves", "", "sonnet", "anthropic", "claude-sonnet-4-5", 200000},
		{"explicit provider wins", "scripted", "gpt-4o", "scripted", "gpt-4o", 128000},
		{"unknown model", "groq", "mystery-1", "groq", "mystery-1", defaultContextWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProviderProfile(tt.provider, tt.model)
			if p.Provider != tt.wantProvider || p.Model != tt.wantModel || p.ContextWindow != tt.wantWindow {
				t.Errorf("got %+v", p)
			}
		})
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	p := NewProviderProfile("openai", "gpt-4o")
	prompt := p.BuildSystemPrompt("/tmp/workspace/agent-app-1")

	if !strings.HasPrefix(prompt, DefaultSystemPrompt) {
		t.Errorf("prompt should open with the instructions: %q", prompt)
	}
	for _, want := range []string{"<environment>", "Workspace root: /tmp/workspace/agent-app-1", "Model: gpt-4o", "</environment>"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected %q in prompt", want)
		}
	}

	p.Instructions = "Build static sites."
	if !strings.HasPrefix(p.BuildSystemPrompt("/w"), "Build static sites.") {
		t.Error("custom instructions should replace the default")
	}
}
