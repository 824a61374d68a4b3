package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/martinemde/vox/agentloop"
)

const previewWidth = 100

// renderer prints session activity. Styles are bound to the writer so
// plain output is produced when it is not a terminal.
type renderer struct {
	w io.Writer

	dim     lipgloss.Style
	tool    lipgloss.Style
	ok      lipgloss.Style
	bad     lipgloss.Style
	warn    lipgloss.Style
	answerS lipgloss.Style
	banner  lipgloss.Style
	prompt  lipgloss.Style
}

func newRenderer(w io.Writer) *renderer {
	lr := lipgloss.NewRenderer(w)
	return &renderer{
		w:       w,
		dim:     lr.NewStyle().Foreground(lipgloss.Color("241")),
		tool:    lr.NewStyle().Foreground(lipgloss.Color("62")).Bold(true),
		ok:      lr.NewStyle().Foreground(lipgloss.Color("42")),
		bad:     lr.NewStyle().Foreground(lipgloss.Color("196")),
		warn:    lr.NewStyle().Foreground(lipgloss.Color("214")),
		answerS: lr.NewStyle().Foreground(lipgloss.Color("255")).PaddingLeft(2),
		banner:  lr.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("28")).Padding(0, 1),
		prompt:  lr.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

func (r *renderer) line(s string) {
	fmt.Fprintln(r.w, s)
}

func (r *renderer) event(ev agentloop.SessionEvent) {
	switch ev.Kind {
	case agentloop.EventSessionStart:
		r.line(r.dim.Render("workspace " + ev.String("workspace")))
	case agentloop.EventToolCallStart:
		r.line(r.tool.Render("→ "+ev.String("tool_name")) + " " + r.dim.Render(preview(ev.String("arguments"))))
	case agentloop.EventToolCallEnd:
		if msg := ev.String("error"); msg != "" {
			r.line(r.bad.Render("✗ " + preview(msg)))
			return
		}
		r.line(r.ok.Render("✓ ") + r.dim.Render(preview(ev.String("output"))))
	case agentloop.EventIgnoredToolCalls:
		r.line(r.warn.Render(fmt.Sprintf("! ignored extra tool calls %v", ev.Data["ignored"])))
	case agentloop.EventLoopDetection, agentloop.EventWarning:
		r.line(r.warn.Render("! " + ev.String("message")))
	case agentloop.EventTurnLimit:
		r.line(r.warn.Render(fmt.Sprintf("! stopped after %v iterations", ev.Data["iterations"])))
	}
}

func (r *renderer) answer(text string) {
	r.line("")
	r.line(r.answerS.Render(text))
	r.line("")
}

func (r *renderer) notice(text string) {
	r.line(r.banner.Render(text))
}

func (r *renderer) failure(text string) {
	r.line(r.bad.Render(text))
}

// preview squeezes s onto one line of at most previewWidth runes.
func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > previewWidth {
		return string(r[:previewWidth-3]) + "..."
	}
	return s
}
