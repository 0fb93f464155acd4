package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/procurement-graph/internal/app"
	"github.com/yungbote/procurement-graph/internal/config"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "procgraph",
		Short: "Procurement risk graph",
		Long:  "Builds a procurement graph from OCDS records and flags fraud-risk patterns in it.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config (default $"+config.EnvConfigPath+")")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRebuildCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewAnalyzeCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openApp loads config and wires the app. Inputs named on the command line replace the
// configured ones. In json mode the logger stays quiet so stdout carries only the response.
func (o *RootOptions) openApp(ctx context.Context, inputs ...string) (*app.App, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if len(inputs) > 0 {
		cfg.Inputs = inputs
	}
	var log *logger.Logger
	if o.Format == "json" && !o.Verbose {
		log = logger.Nop()
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "initialise", err)
	}
	return a, nil
}
