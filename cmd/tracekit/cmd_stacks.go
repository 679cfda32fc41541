package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tracekit/pkg/callstack"
)

var stacksDepth int

var stacksCmd = &cobra.Command{
	Use:   "stacks",
	Short: "Capture stack snapshots and show structure sharing",
	Long: `Captures snapshots at several recursion depths and reports, for each
pair of consecutive captures, how many frames were popped and pushed
and how many nodes the snapshots share.`,
	RunE: runStacks,
}

func init() {
	stacksCmd.Flags().IntVar(&stacksDepth, "depth", 4, "maximum recursion depth to capture at")
}

func runStacks(cmd *cobra.Command, args []string) error {
	factory := callstack.NewFactory()
	for _, prefix := range cfg.Callstack.ExcludePrefixes {
		factory.ExcludePrefix(prefix)
	}

	var descend func(depth int) *callstack.Stack
	descend = func(depth int) *callstack.Stack {
		if depth > 0 {
			return descend(depth - 1)
		}
		return factory.Capture()
	}

	var prev *callstack.Stack
	for depth := 0; depth <= stacksDepth; depth++ {
		s := descend(depth)
		logger.Debug("captured snapshot",
			zap.Int("depth", depth),
			zap.Int("frames", s.Len()))

		pop, add := s.ChangesFrom(prev)
		shared := s.Len() - len(add)
		cmd.Printf("depth %d: %d frames, pop %d, push %d, %d shared with previous\n",
			depth, s.Len(), pop, len(add), shared)
		for _, frame := range add {
			cmd.Printf("  + %s (%s:%d)\n", frame.FuncName(), frame.File(), frame.Line())
		}
		prev = s
	}

	head := descend(stacksDepth)
	fmt.Fprintln(cmd.OutOrStdout())
	cmd.Printf("locations of the deepest capture, oldest first:\n")
	for i, loc := range head.Locations() {
		cmd.Printf("  [%d] %s:%d\n", i, loc.File, loc.Line)
	}
	return nil
}
