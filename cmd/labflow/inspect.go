package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/labflow/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <uid>",
	Short: "Show the states, allowed transitions and history of an entity",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
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

		md := tui.EntityMarkdown(e, s.engine.States(ctx, e), s.engine.Registry().Axes(e.Type()), s.engine.History(ctx, e))
		md += "\n## Allowed transitions\n\n"
		allowed := s.engine.AllowedTransitions(ctx, e)
		if len(allowed) == 0 {
			md += "_None._\n"
		}
		for _, t := range allowed {
			md += fmt.Sprintf("- `%s` (%s → %s)\n", t.ID, t.Axis, t.To)
		}

		render := tui.ForWriter(os.Stdout)
		if plain, _ := cmd.Flags().GetBool("plain"); plain {
			render = tui.Plain
		}
		out, err := render(md)
		if err != nil {
			fmt.Printf("Error rendering: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(out)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("plain", false, "Print raw markdown even on a terminal")
}
