package cli

import (
	"fmt"

	"github.com/harun/docsess/pkg/session"
	"github.com/spf13/cobra"
)

// mutation is a command applying one session mutator
type mutation struct {
	use   string
	short string
	args  cobra.PositionalArgs
	apply func(s *session.Session, args []string) error
}

var mutations = []mutation{
	{
		use:   "set <id> <path> <value>",
		short: "Assign a value",
		args:  cobra.ExactArgs(3),
		apply: func(s *session.Session, args []string) error {
			return s.Set(args[0], parseValue(args[1]))
		},
	},
	{
		use:   "unset <id> <path>",
		short: "Remove a value",
		args:  cobra.ExactArgs(2),
		apply: func(s *session.Session, args []string) error {
			return s.Unset(args[0])
		},
	},
	{
		use:   "inc <id> <path> [n]",
		short: "Increment a number (by 1 unless n is given)",
		args:  cobra.RangeArgs(2, 3),
		apply: func(s *session.Session, args []string) error {
			var n any = int64(1)
			if len(args) > 1 {
				n = parseValue(args[1])
			}
			return s.Inc(args[0], n)
		},
	},
	{
		use:   "rename <id> <old> <new>",
		short: "Move a value to another path",
		args:  cobra.ExactArgs(3),
		apply: func(s *session.Session, args []string) error {
			return s.Rename(args[0], args[1])
		},
	},
	{
		use:   "push <id> <path> <value>...",
		short: "Append values to a list",
		args:  cobra.MinimumNArgs(3),
		apply: func(s *session.Session, args []string) error {
			return s.PushAll(args[0], parseValues(args[1:]))
		},
	},
	{
		use:   "pull <id> <path> <value>...",
		short: "Remove every list element equal to one of the values",
		args:  cobra.MinimumNArgs(3),
		apply: func(s *session.Session, args []string) error {
			return s.PullAll(args[0], parseValues(args[1:]))
		},
	},
	{
		use:   "add <id> <path> <value>...",
		short: "Append values missing from a list",
		args:  cobra.MinimumNArgs(3),
		apply: func(s *session.Session, args []string) error {
			return s.AddToSet(args[0], parseValues(args[1:])...)
		},
	},
	{
		use:   "pop <id> <path>",
		short: "Remove the last list element",
		args:  cobra.ExactArgs(2),
		apply: func(s *session.Session, args []string) error {
			return s.Pop(args[0])
		},
	},
	{
		use:   "shift <id> <path>",
		short: "Remove the first list element",
		args:  cobra.ExactArgs(2),
		apply: func(s *session.Session, args []string) error {
			return s.Shift(args[0])
		},
	},
}

func init() {
	for _, m := range mutations {
		m := m
		rootCmd.AddCommand(&cobra.Command{
			Use:   m.use,
			Short: m.short,
			Long: m.short + `.

Values are read as JSON and fall back to plain strings. An unknown <id>
starts a new session; the id it was saved under is printed.`,
			Args: m.args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMutation(cmd, args, m.apply)
			},
		})
	}
}

func runMutation(cmd *cobra.Command, args []string, apply func(*session.Session, []string) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	lifecycle := a.manager.Lifecycle(args[0])

	sess, err := lifecycle.Session(ctx)
	if err != nil {
		return err
	}
	if err := apply(sess, args[1:]); err != nil {
		return err
	}

	outcome, err := lifecycle.Commit(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", lifecycle.ID(), outcome)
	return nil
}
