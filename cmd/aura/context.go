package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/config"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/logging"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/studio"
)

type commandContext struct {
	configFlag  *string
	outputFlag  *string
	quietFlag   *bool
	verboseFlag *bool

	// runtimeOpts seeds studio.Open; tests inject fakes here.
	runtimeOpts studio.Options

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, outputFlag *string, quietFlag, verboseFlag *bool, opts studio.Options) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		outputFlag:  outputFlag,
		quietFlag:   quietFlag,
		verboseFlag: verboseFlag,
		runtimeOpts: opts,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) outputFormat() outputFormat {
	if c.outputFlag == nil {
		return outputTable
	}
	return outputFormat(strings.ToLower(strings.TrimSpace(*c.outputFlag)))
}

// logLevel keeps one-shot commands quiet unless --verbose is set. Long-running
// commands pass the configured level instead.
func (c *commandContext) logLevel() string {
	if c.verboseFlag != nil && *c.verboseFlag {
		return "debug"
	}
	return "warn"
}

// openRuntime builds the shared services for one command. Console notices go
// to the command's stderr unless --quiet is set.
func (c *commandContext) openRuntime(cmd *cobra.Command, level string) (*studio.Runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	opts := c.runtimeOpts
	if opts.Logger == nil {
		logger, err := logging.New(logging.Options{
			Level:  level,
			Format: cfg.Logging.Format,
			Writer: cmd.ErrOrStderr(),
		})
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		opts.Logger = logger
	}
	if opts.Notices == nil && (c.quietFlag == nil || !*c.quietFlag) {
		opts.Notices = cmd.ErrOrStderr()
	}
	return studio.Open(cfg, opts)
}

// withRuntime opens the runtime, runs fn under a signal-aware context, and
// closes the runtime afterwards.
func (c *commandContext) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *studio.Runtime) error) error {
	rt, err := c.openRuntime(cmd, c.logLevel())
	if err != nil {
		return err
	}
	defer rt.Close()
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, rt)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// waitOptions holds the shared --wait/--timeout flags.
type waitOptions struct {
	wait    bool
	timeout time.Duration
}

func (w *waitOptions) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&w.wait, "wait", "w", false, "Follow live updates until the workflow needs input or finishes")
	cmd.Flags().DurationVar(&w.timeout, "timeout", 15*time.Minute, "Give up waiting after this long")
}

// await blocks until done(current()) holds, printing each distinct line
// produced by render. subscribe registers a change callback and returns its
// remover.
func await[S any](ctx context.Context, out io.Writer, timeout time.Duration, subscribe func(func(S)) func(), current func() S, done func(S) bool, render func(S) string) (S, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	changed := make(chan struct{}, 1)
	off := subscribe(func(S) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer off()

	var last string
	for {
		s := current()
		if line := render(s); line != "" && line != last {
			fmt.Fprintln(out, line)
			last = line
		}
		if done(s) {
			return s, nil
		}
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return s, fmt.Errorf("still in progress after %s; run `aura watch` to keep following", timeout)
			}
			return s, ctx.Err()
		case <-changed:
		}
	}
}
