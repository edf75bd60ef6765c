package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/crib-agent/internal/dispatch"
	"github.com/nerrad567/crib-agent/internal/state"
)

// NewDriveCommand creates the drive command.
func NewDriveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drive <attribute> [values...]",
		Short: "Dispatch a desired value to an attribute's driver",
		Long: `Dispatch a desired value to an attribute's driver and store the result.

Numeric values are passed as numbers, everything else as text. A single
value is the desired value; several values form a command sequence.

Examples:
  sensorctl drive red_led on
  sensorctl drive lights set 30
  sensorctl drive lights blink 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd.Context(), func(s *Session) error {
				name := args[0]
				applied, err := s.Dispatcher.Dispatch(cmd.Context(), name, desiredFromArgs(args[1:]))
				switch {
				case errors.Is(err, dispatch.ErrUnknownAttribute):
					return WrapExitError(ExitCommandError, "drive "+name, err)
				case err != nil:
					return WrapExitError(ExitFailure, "drive "+name, err)
				}
				return write(cmd.OutOrStdout(), opts.Format,
					map[string]any{"attribute": name, "value": applied},
					func() string { return fmt.Sprintf("%s = %s", name, formatValue(applied)) })
			})
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <attribute>",
		Short: "Print an attribute's stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd.Context(), func(s *Session) error {
				attr, err := s.Store.Get(cmd.Context(), args[0])
				if errors.Is(err, state.ErrNotFound) {
					return WrapExitError(ExitFailure, "get "+args[0], err)
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "get "+args[0], err)
				}
				return write(cmd.OutOrStdout(), opts.Format, attr, func() string {
					return fmt.Sprintf("%s = %s (updated %s)",
						attr.Name, formatValue(attr.Value), attr.UpdatedAt.Format(time.RFC3339))
				})
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the attributes the board can drive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd.Context(), func(s *Session) error {
				return write(cmd.OutOrStdout(), opts.Format, s.Drivers, func() string {
					return strings.Join(s.Drivers, "\n")
				})
			})
		},
	}
}

// desiredFromArgs turns command-line values into a desired value: nothing
// is nil, one value is itself, several are a sequence.
func desiredFromArgs(args []string) any {
	switch len(args) {
	case 0:
		return nil
	case 1:
		return parseValue(args[0])
	}
	seq := make([]any, len(args))
	for i, a := range args {
		seq[i] = parseValue(a)
	}
	return seq
}

func parseValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func formatValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
