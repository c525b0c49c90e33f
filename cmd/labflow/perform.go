package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/labflow/internal/presentation/tui"
	"github.com/aretw0/labflow/pkg/action"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/spf13/cobra"
)

var performCmd = &cobra.Command{
	Use:   "perform <uid> <transition>",
	Short: "Request a transition on an entity",
	Long: `Performs one transition as a logical action of --actor. Cascades, escalations and
reflex rules run as part of it. Use a persistent --store to keep the result.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		comment, _ := cmd.Flags().GetString("comment")
		result, _ := cmd.Flags().GetString("result")
		skipGuard, _ := cmd.Flags().GetBool("skip-guard")

		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			fmt.Printf("Error opening lab: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = s.close() }()

		e, err := s.lab.Resolve(ctx, args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if result != "" {
			if err := s.lab.SetResult(e, result); err != nil {
				fmt.Printf("Error setting result: %v\n", err)
				os.Exit(1)
			}
		}

		opts := []domain.PerformOption{domain.WithComment(comment)}
		if skipGuard {
			opts = append(opts, domain.SkipGuard())
		}

		var outcome domain.Outcome
		err = s.runner.Do(ctx, action.KeyOf(e), s.cfg.Actor, func(ctx context.Context) error {
			outcome = s.engine.Perform(ctx, e, domain.TransitionID(args[1]), opts...)
			return nil
		})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s %s: %s\n", e.UID(), args[1], tui.FormatOutcome(os.Stdout, outcome))
		states := s.engine.States(ctx, e)
		for _, axis := range s.engine.Registry().Axes(e.Type()) {
			fmt.Printf("  %s = %s\n", axis, states[axis])
		}
		if !outcome.Performed {
			_ = s.close()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(performCmd)
	performCmd.Flags().String("comment", "", "Comment recorded in the audit trail")
	performCmd.Flags().String("result", "", "Capture this result on the analysis first")
	performCmd.Flags().Bool("skip-guard", false, "Bypass the guard (repairs and migrations only)")
}
