package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const helpText = `Available commands:

  /voice <file>  Transcribe an audio file and send it as a request
  /help          Display this help message
  /exit          Exit the application

Any other line is sent to the agent as a request. Each request gets its own
workspace.`

// repl reads requests from in until /exit, end of input or cancellation.
// A failed request is reported and the loop carries on.
func (a *app) repl(ctx context.Context, in io.Reader, out io.Writer) error {
	r := newRenderer(out)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r.line(r.tool.Render("vox") + r.dim.Render("  type a request, or /help"))
	for {
		fmt.Fprint(out, r.prompt.Render("> "))

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			r.line("")
			r.line("Goodbye!")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			r.line("")
			r.line("Goodbye!")
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if !strings.HasPrefix(input, "/") {
			a.request(ctx, r, input)
			continue
		}

		command, arg, _ := strings.Cut(input, " ")
		switch strings.ToLower(command) {
		case "/help":
			r.line(helpText)
		case "/exit":
			r.line("Ok!")
			return nil
		case "/voice":
			arg = strings.TrimSpace(arg)
			if arg == "" {
				r.failure("usage: /voice <audio file>")
				continue
			}
			text, err := a.transcribe(ctx, arg)
			if err != nil {
				r.failure("Error: " + err.Error())
				continue
			}
			r.line(r.dim.Render("heard: " + text))
			a.request(ctx, r, text)
		default:
			r.line("Unknown command. Use /help for the list of available commands.")
		}
	}
}

func (a *app) request(ctx context.Context, r *renderer, prompt string) {
	if _, err := a.activate(ctx, r.w, prompt); err != nil {
		r.failure("Error: " + err.Error())
	}
}
