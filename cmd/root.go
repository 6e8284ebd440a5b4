package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rajshirolkar/evaluation-copilot/internal/config"
	"github.com/rajshirolkar/evaluation-copilot/internal/evaluator"
	"github.com/rajshirolkar/evaluation-copilot/internal/llm"
	"github.com/rajshirolkar/evaluation-copilot/internal/model"
	telem "github.com/rajshirolkar/evaluation-copilot/internal/otel"
	"github.com/rajshirolkar/evaluation-copilot/internal/store"
)

var (
	// Global flags.
	flagConfig    string
	flagProvider  string
	flagModel     string
	flagBaseURL   string
	flagAPIKey    string
	flagMaxTokens int64
	flagLogLevel  string
	flagLogFormat string
	flagRecord    bool

	// Set by setup before any command runs.
	cfg *config.Config
	tel *telem.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "eval-copilot",
	Short: "Score question/answer pairs with an LLM judge",
	Long: `eval-copilot asks a language model to grade an answer to a question
against a rubric (general, relevance, coherence, fluency, groundedness),
returning a score with a justification, and can suggest improved
formulations of the question and the answer.

Relevance and groundedness compare the answer against reference context,
which must be supplied with --context.

Configuration is loaded from --config, .eval-copilot.yaml or
~/.config/eval-copilot/config.yaml, then EVAL_COPILOT_* environment
variables, then command-line flags.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err := tel.Shutdown(context.Background()); err != nil {
		slog.Warn("otel shutdown failed", "error", err)
	}
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default: .eval-copilot.yaml or ~/.config/eval-copilot/config.yaml)")
	pf.StringVar(&flagProvider, "provider", "", "LLM provider: anthropic, openai (default: anthropic)")
	pf.StringVar(&flagModel, "model", "", "LLM model name (default: claude-sonnet-4-5 for anthropic, gpt-4o-mini for openai)")
	pf.StringVar(&flagBaseURL, "base-url", "", "override LLM API base URL")
	pf.StringVar(&flagAPIKey, "api-key", "", "override LLM API key")
	pf.Int64Var(&flagMaxTokens, "max-tokens", 0, "max completion tokens (default: 4096)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (default: info)")
	pf.StringVar(&flagLogFormat, "log-format", "", "log format: text, json (default: text)")
	pf.BoolVar(&flagRecord, "record", false, "persist every evaluation to the evaluation store")
}

// setup loads configuration, applies flags set on the command line and
// initializes logging and telemetry.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	applyFlags(cmd, c)
	if err := c.Resolve(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg = c

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger)
	if cfg.ConfigFile != "" {
		slog.Debug("config loaded", "path", cfg.ConfigFile)
	}

	// Wire build version into OTEL service metadata
	telem.Version = Version
	t, err := telem.Init(cmd.Context(), telem.OTELConfig{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		slog.Warn("otel init failed", "error", err)
	}
	tel = t
	return nil
}

// applyFlags overrides config values with flags given explicitly.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("provider") {
		c.Provider = flagProvider
	}
	if flags.Changed("model") {
		c.Model = flagModel
	}
	if flags.Changed("base-url") {
		c.BaseURL = flagBaseURL
	}
	if flags.Changed("api-key") {
		c.APIKey = flagAPIKey
	}
	if flags.Changed("max-tokens") {
		c.MaxTokens = flagMaxTokens
	}
	if flags.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		c.LogFormat = flagLogFormat
	}
	if flags.Changed("record") {
		c.Record = flagRecord
	}
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (supported: text, json)", format)
	}
}

func metrics() *telem.Metrics {
	if tel == nil {
		return nil
	}
	return tel.Metrics
}

// newEngine builds the evaluation engine from the resolved config. Every
// call is logged; with --record successful calls are also written to the
// evaluation store. The returned func flushes and closes the store.
func newEngine(ctx context.Context) (*evaluator.Engine, func(), error) {
	client, err := llm.New(llm.Config{
		Provider:     cfg.Provider,
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		MaxTokens:    cfg.MaxTokens,
		Timeout:      cfg.TimeoutDuration,
		MaxRetries:   cfg.Retries(),
		ExtraHeaders: cfg.ExtraHeaders(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w. Set EVAL_COPILOT_API_KEY, ANTHROPIC_API_KEY, OPENAI_API_KEY or AZURE_OPENAI_API_KEY", err)
	}

	recorders := evaluator.MultiRecorder{evaluator.NewLogRecorder(slog.Default())}
	cleanup := func() {}

	if cfg.Record {
		st, err := store.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening evaluation store: %w", err)
		}
		async := evaluator.NewAsyncRecorder(st, 0)
		recorders = append(recorders, async)
		cleanup = func() {
			async.Close()
			if n := async.Dropped(); n > 0 {
				slog.Warn("evaluation records dropped", "count", n)
			}
			if err := st.Close(); err != nil {
				slog.Warn("closing evaluation store", "error", err)
			}
		}
	}

	engine := evaluator.New(client,
		evaluator.WithRecorder(recorders),
		evaluator.WithMetrics(metrics()),
	)
	return engine, cleanup, nil
}

// rubricOrDefault parses name, falling back to the configured rubric.
func rubricOrDefault(name string) (model.Rubric, error) {
	if name == "" {
		name = cfg.Rubric
	}
	r, err := model.ParseRubric(name)
	if err != nil {
		return r, &evaluator.InvalidRequestError{Field: "rubric", Reason: err.Error()}
	}
	return r, nil
}

// printError writes err prefixed with its kind.
func printError(w io.Writer, err error) {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, "interrupted")
		return
	}
	kind := evaluator.Kind(err)
	if kind == "error" {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "error [%s]: %v\n", kind, err)
}
