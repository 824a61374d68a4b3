package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/martinemde/vox/agentloop"
	"github.com/martinemde/vox/config"
	"github.com/martinemde/vox/unifiedllm"
	"github.com/martinemde/vox/workspace"
)

// app holds what the commands share once the config has been loaded.
type app struct {
	configPath string
	verbose    bool

	// newClient and openURL are replaced in tests.
	newClient func(*config.Config, *zap.Logger) (*unifiedllm.Client, error)
	openURL   func(url string) error

	cfg     *config.Config
	logger  *zap.Logger
	client  *unifiedllm.Client
	manager *agentloop.Manager
}

func newApp() *app {
	return &app{
		configPath: config.DefaultPath,
		newClient:  clientFromEnv,
		openURL:    openBrowser,
		logger:     zap.NewNop(),
	}
}

// setup loads the config and builds the logger.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg.Logging, a.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// connect builds the model client and session manager on first use.
func (a *app) connect() error {
	if a.manager != nil {
		return nil
	}
	client, err := a.newClient(a.cfg, a.logger)
	if err != nil {
		return err
	}

	opts := []agentloop.ManagerOption{
		agentloop.WithManagerLogger(a.logger),
		agentloop.WithCommandTimeout(a.cfg.Agent.CommandTimeout),
		agentloop.WithSessionOptions(
			agentloop.WithClient(client),
			agentloop.WithSessionConfig(a.cfg.SessionConfig()),
			agentloop.WithSessionLogger(a.logger),
		),
	}
	if a.cfg.Lookup.Enabled {
		opts = append(opts, agentloop.WithLookupOptions(a.cfg.LookupOptions()))
	} else {
		opts = append(opts, agentloop.WithoutLookupTools())
	}

	a.client = client
	a.manager = agentloop.NewManager(a.cfg.Workspace.Base, a.cfg.Profile(), opts...)
	return nil
}

func (a *app) close() {
	if a.manager != nil {
		a.manager.CloseAll()
	}
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.logger.Warn("closing model client", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func clientFromEnv(cfg *config.Config, logger *zap.Logger) (*unifiedllm.Client, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	opts := []unifiedllm.ClientOption{
		unifiedllm.WithDefaultProvider(cfg.LLM.Provider),
		unifiedllm.WithMiddleware(unifiedllm.LoggingMiddleware(logger)),
	}
	adapter, err := configuredAdapter(cfg)
	if err != nil {
		return nil, err
	}
	if adapter != nil {
		opts = append(opts, unifiedllm.WithProvider(cfg.LLM.Provider, adapter))
	}
	return unifiedllm.NewClientFromEnv(opts...), nil
}

// configuredAdapter builds the adapter for the configured provider with the
// model settings from the llm section. It returns nil for a provider it
// does not know; the client reports those on first use.
func configuredAdapter(cfg *config.Config) (unifiedllm.ProviderAdapter, error) {
	llm := cfg.LLM
	model := cfg.Profile().Model

	if llm.Provider == "openai" {
		opts := []unifiedllm.OpenAIAdapterOption{
			unifiedllm.WithDefaultModel(model),
			unifiedllm.WithTranscriptionModel(llm.TranscriptionModel),
		}
		if llm.BaseURL != "" {
			opts = append(opts, unifiedllm.WithBaseURL(llm.BaseURL))
		}
		if llm.Organization != "" {
			opts = append(opts, unifiedllm.WithRequestOptions(option.WithOrganization(llm.Organization)))
		}
		return unifiedllm.NewOpenAIAdapter(llm.APIKey, opts...), nil
	}

	keyEnv := unifiedllm.ProviderKeyEnv(llm.Provider)
	if keyEnv == "" {
		return nil, nil
	}
	opts := []unifiedllm.GollmOption{unifiedllm.GollmModel(model)}
	if key := os.Getenv(keyEnv); key != "" {
		opts = append(opts, unifiedllm.GollmAPIKey(key))
	}
	if llm.MaxTokens > 0 {
		opts = append(opts, unifiedllm.GollmMaxTokens(llm.MaxTokens))
	}
	adapter, err := unifiedllm.NewGollmAdapter(llm.Provider, opts...)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

func buildLogger(cfg config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.DisableStacktrace = true
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

// activate runs prompt in a fresh session, renders its events to w and
// returns the workspace root. The session is closed afterwards; its
// workspace stays on disk.
func (a *app) activate(ctx context.Context, w io.Writer, prompt string) (string, error) {
	r := newRenderer(w)

	s, err := a.manager.Open(ctx)
	if err != nil {
		return "", err
	}
	root := s.Sandbox().Root()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range s.Events() {
			r.event(ev)
		}
	}()

	answer, runErr := a.manager.Run(ctx, s.ID(), prompt)
	if err := a.manager.Close(s.ID()); err != nil {
		a.logger.Warn("closing session", zap.Error(err))
	}
	<-done

	if runErr != nil {
		return root, runErr
	}
	r.answer(answer)
	return root, nil
}

// transcribe turns the audio file at path into a prompt.
func (a *app) transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	text, err := a.client.Transcribe(ctx, f, filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", path, err)
	}
	a.logger.Debug("transcribed audio", zap.String("file", path), zap.Int("chars", len(text)))
	return text, nil
}

// serve exposes root over HTTP until ctx is done, optionally opening it in
// a browser first.
func (a *app) serve(ctx context.Context, w io.Writer, root string, open bool) error {
	sb, err := workspace.Open(root, workspace.WithLogger(a.logger))
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", a.cfg.ServeAddr())
	if err != nil {
		return fmt.Errorf("serve workspace: %w", err)
	}

	r := newRenderer(w)
	url := workspace.URL(ln.Addr().String())
	r.notice("Workspace is being served at " + url)
	if open {
		if err := a.openURL(url); err != nil {
			r.failure("Error opening browser: " + err.Error())
		} else {
			r.notice("Browser opened at " + url)
		}
	}
	return sb.ServeListener(ctx, ln)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
