package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/labflow/internal/presentation/graph"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/lims"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <type>",
	Short: "Export the workflow of an entity type as a Mermaid diagram",
	Long: `Outputs a Mermaid state diagram (stateDiagram-v2) with one composite state per axis.
With --uid, the current states of that entity are highlighted (the lab is opened
with the configured store and fixture).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		et := domain.EntityType(args[0])
		uid, _ := cmd.Flags().GetString("uid")

		reg, err := lims.NewRegistry()
		if err != nil {
			fmt.Printf("Error loading workflows: %v\n", err)
			os.Exit(1)
		}
		wfs := reg.Workflows(et)
		if len(wfs) == 0 {
			fmt.Printf("Unknown entity type %q. Known types: %v\n", et, reg.Types())
			os.Exit(1)
		}

		var overlay *graph.Overlay
		if uid != "" {
			ctx := context.Background()
			s, err := openSession(ctx)
			if err != nil {
				fmt.Printf("Error opening lab: %v\n", err)
				os.Exit(1)
			}
			defer func() { _ = s.close() }()

			e, err := s.lab.Resolve(ctx, uid)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			if e.Type() != et {
				fmt.Printf("Error: %s is a %s, not a %s\n", uid, e.Type(), et)
				os.Exit(1)
			}
			overlay = &graph.Overlay{States: s.engine.States(ctx, e)}
		}

		fmt.Print(graph.GenerateMermaid(wfs, overlay))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("uid", "", "Highlight the current states of this entity")
}
