package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/martinemde/vox/agentloop"
	"github.com/martinemde/vox/workspace"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "vox",
		Short: "Build small apps from spoken or typed requests",
		Long: `vox hands each request to a tool-calling model working inside a fresh
workspace directory. The model can create, read, update and delete files
and folders, run npm, and look up the current location and weather.

Run without arguments to start the interactive prompt.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(); err != nil {
				return err
			}
			return a.repl(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", a.configPath, "Path to the YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newRunCmd(a), newToolsCmd(a), newServeCmd(a))
	return root
}

func newRunCmd(a *app) *cobra.Command {
	var (
		audio string
		serve bool
		open  bool
	)
	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Run one request in a fresh workspace",
		Example: `  vox run "make a landing page for a bakery"
  vox run --audio request.wav --open`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && audio == "" {
				return errors.New("a prompt or --audio file is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(); err != nil {
				return err
			}
			ctx := cmd.Context()
			prompt := strings.Join(args, " ")
			if audio != "" {
				text, err := a.transcribe(ctx, audio)
				if err != nil {
					return err
				}
				prompt = strings.TrimSpace(prompt + " " + text)
			}

			root, err := a.activate(ctx, cmd.OutOrStdout(), prompt)
			if err != nil {
				return err
			}
			if serve || open {
				return a.serve(ctx, cmd.OutOrStdout(), root, open)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&audio, "audio", "", "Transcribe this audio file and use it as the prompt")
	cmd.Flags().BoolVar(&serve, "serve", false, "Serve the workspace over HTTP when the run finishes")
	cmd.Flags().BoolVar(&open, "open", false, "Serve the workspace and open it in a browser")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var open bool
	cmd := &cobra.Command{
		Use:   "serve <workspace>",
		Short: "Serve an existing workspace over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), cmd.OutOrStdout(), args[0], open)
		},
	}
	cmd.Flags().BoolVar(&open, "open", false, "Open the workspace in a browser")
	return cmd
}

func newToolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog offered to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := catalog(a)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			r := newRenderer(w)
			for _, def := range reg.Definitions() {
				schema, err := json.Marshal(def.Parameters)
				if err != nil {
					return fmt.Errorf("encode %s schema: %w", def.Name, err)
				}
				r.line(r.tool.Render(def.Name) + "  " + def.Description)
				r.line(r.dim.Render("  " + string(schema)))
			}
			return nil
		},
	}
}

// catalog builds the tool registry a session would get. It is bound to the
// current directory but no tool is invoked.
func catalog(a *app) (*agentloop.ToolRegistry, error) {
	sb, err := workspace.Open(".")
	if err != nil {
		return nil, err
	}
	reg := agentloop.NewToolRegistry()
	if err := agentloop.RegisterWorkspaceTools(reg, sb, a.cfg.Agent.CommandTimeout); err != nil {
		return nil, err
	}
	if a.cfg.Lookup.Enabled {
		if err := agentloop.RegisterLookupTools(reg, a.cfg.LookupOptions()); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
