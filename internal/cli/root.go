package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/crib-agent/internal/state"
)

// Dispatcher applies a desired value to a named attribute.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, desired any) (any, error)
}

// Session is the local runtime a command works against.
type Session struct {
	Dispatcher Dispatcher
	Store      state.Store
	Drivers    []string
	Close      func() error
}

// Opener builds a Session from the config file at path.
type Opener func(ctx context.Context, path string) (*Session, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"

	open Opener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for sensorctl.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "sensorctl",
		Short: "Drive and inspect the device's attributes locally",
		Long:  "sensorctl dispatches commands to the board's drivers and reads the agent's state store without a cloud session.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "configs/config.yaml", "path to the agent config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewDriveCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))

	return cmd
}

// withSession opens a Session, runs fn and closes the session.
func (o *RootOptions) withSession(ctx context.Context, fn func(*Session) error) error {
	if o.open == nil {
		return NewExitError(ExitCommandError, "no session opener configured")
	}
	s, err := o.open(ctx, o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening device", err)
	}
	if s.Close != nil {
		defer s.Close() //nolint:errcheck // best-effort release on exit
	}
	return fn(s)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
