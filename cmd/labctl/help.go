package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// helpWords are positional arguments that print a command's help instead
// of running it.
var helpWords = []string{"help", "?"}

func handleHelpArg(cmd *cobra.Command, args []string) bool {
	if len(args) == 0 {
		return false
	}
	for _, w := range helpWords {
		if strings.EqualFold(args[0], w) {
			_ = cmd.Help()
			return true
		}
	}
	return false
}

// flagError reports a flag the command cannot run without.
type flagError struct {
	command string
	flag    string
}

func (e *flagError) Error() string {
	return fmt.Sprintf("required flag %s not set (see %q)", e.flag, e.command+" --help")
}

// missingFlagError prints the command's flag summary to stderr and returns
// a flagError naming flag.
func missingFlagError(cmd *cobra.Command, flag string) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Usage:\n  %s\n\nFlags:\n%s", cmd.UseLine(), cmd.LocalFlags().FlagUsages())
	return &flagError{command: cmd.CommandPath(), flag: flag}
}
