package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/aretw0/labflow"
	"github.com/aretw0/labflow/pkg/lims"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the labflow version and the workflows it ships",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("labflow %s (%s)\n", strings.TrimSpace(labflow.Version), runtime.Version())

		verbose, _ := cmd.Flags().GetBool("verbose")
		if !verbose {
			return
		}
		reg, err := lims.NewRegistry()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		for _, et := range reg.Types() {
			fmt.Printf("  %-20s %v\n", et, reg.Axes(et))
		}
	},
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "List entity types and their axes")
	rootCmd.AddCommand(versionCmd)
}
