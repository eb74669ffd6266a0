package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theimaginaryfoundation/casebook/extraction"
	"github.com/theimaginaryfoundation/casebook/internal/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// usageError marks failures caused by flags or configuration; they exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

// app carries what every command needs once the root flags are parsed.
type app struct {
	global GlobalConfig
	cfg    extraction.Config
	log    *logger.Logger

	stdout io.Writer
	stderr io.Writer

	newLogger func(mode string) (*logger.Logger, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		global:    defaultGlobalConfig(),
		stdout:    stdout,
		stderr:    stderr,
		newLogger: logger.New,
	}
}

func (a *app) assembler() *extraction.Assembler {
	return extraction.NewAssembler(a.cfg.Classifier(), a.log)
}

func run(args []string, stdout, stderr io.Writer) int {
	return execute(newApp(stdout, stderr), args)
}

func execute(a *app, args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if a.log != nil {
		defer a.log.Sync()
	}
	if err == nil {
		return 0
	}
	fmt.Fprintln(a.stderr, "error:", err.Error())
	var uerr usageError
	if errors.As(err, &uerr) {
		return 2
	}
	if a.log != nil && cmd != nil {
		a.log.Error("command failed", "command", cmd.Name(), "error", err)
	}
	return 1
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "casebook",
		Short: "Extract good/bad challenge cases from workflow exports",
		Long: `casebook turns exported workflow rows (content tree + in_param graph) into
structured case records: role fields, background story, endings, model id and
system prompt template.

Typical use:
  casebook run --in export.csv --base-dir out
  casebook inspect --in export.csv --row 3`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usagef("unknown command %q", args[0])
			}
			return cmd.Help()
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})
	bindGlobalFlags(root.PersistentFlags(), &a.global)

	root.AddCommand(
		newExtractCmd(a),
		newReportCmd(a),
		newRunCmd(a),
		newInspectCmd(a),
		newSchemaCmd(a),
	)
	return root
}

func (a *app) setup() error {
	if err := a.global.Validate(); err != nil {
		return usageError{err: err}
	}
	cfg, err := extraction.LoadConfig(a.global.ConfigPath)
	if err != nil {
		return usageError{err: err}
	}
	log, err := a.newLogger(a.global.LogMode)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.cfg = cfg
	a.log = log
	return nil
}
