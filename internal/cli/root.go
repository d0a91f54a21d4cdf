// Package cli implements the extsys command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"extsys/internal/app"
	"extsys/internal/config"
)

// DefaultTimeout bounds commands that talk to external systems
const DefaultTimeout = 60 * time.Second

// Option customizes the root command
type Option func(*runtime)

// WithApp runs every command against a, which the caller keeps ownership of.
func WithApp(a *app.App) Option {
	return func(r *runtime) { r.app = a; r.shared = true }
}

type runtime struct {
	envFiles []string
	timeout  time.Duration
	app      *app.App
	shared   bool
}

// NewRootCommand builds the extsys command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	r := &runtime{}
	for _, opt := range opts {
		opt(r)
	}

	root := &cobra.Command{
		Use:   "extsys",
		Short: "Manage and exercise external system connections",
		Long: `extsys stores connection records of third-party systems and sends
requests to them over the configured protocol (HTTP or Redis streams).

Settings are read from the environment and from .env files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return r.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			r.close()
		},
	}
	root.PersistentFlags().StringSliceVar(&r.envFiles, "env-file", nil, "dotenv files to load (default .env)")
	root.PersistentFlags().DurationVar(&r.timeout, "timeout", DefaultTimeout, "overall deadline of the command")

	root.AddCommand(
		newSystemsCommand(r),
		newCheckCommand(r),
		newSendCommand(r),
		newTokenCommand(r),
	)
	return root
}

// Execute runs the command line with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (r *runtime) open(ctx context.Context) error {
	if r.app != nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, config.LoadFiles(r.envFiles...))
	if err != nil {
		return err
	}
	r.app = a
	return nil
}

func (r *runtime) close() {
	if r.app != nil && !r.shared {
		r.app.Close()
		r.app = nil
	}
}

func (r *runtime) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
