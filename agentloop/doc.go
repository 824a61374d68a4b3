// Package agentloop runs a tool-calling conversation between a hosted model
// and a sandboxed workspace.
//
// A Session owns one workspace.Sandbox, one Conversation and one
// ToolRegistry. Session.Run appends the user's text, then alternates model
// calls with tool dispatches until the model answers without a tool call or
// the iteration ceiling is reached. Each model response may request several
// tools; only the first is dispatched and the rest are reported through an
// ignored_tool_calls event.
//
// Tools are declared with NewTool, which reflects a JSON schema from a Go
// argument struct and binds the model's arguments to it by name:
//
//	reg := agentloop.NewToolRegistry()
//	_ = agentloop.RegisterWorkspaceTools(reg, sandbox, 0)
//	s := agentloop.NewSession(agentloop.NewProviderProfile("openai", "gpt-4o"), sandbox, reg,
//		agentloop.WithClient(client))
//	defer s.Close()
//	answer, err := s.Run(ctx, "Create hello.txt containing hi")
//
// Manager opens a fresh workspace and session per activation and looks
// sessions up by id.
package agentloop
