package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/labflow/internal/presentation/tui"
	"github.com/aretw0/labflow/pkg/action"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/lims"
	"github.com/spf13/cobra"
)

// demoStep is one logical action of the demo scenario.
type demoStep struct {
	actor      string
	uid        string
	transition domain.TransitionID
	// prepare captures results before the transition.
	prepare func(*lims.Lab, domain.Entity) error
}

func withResult(result string) func(*lims.Lab, domain.Entity) error {
	return func(lab *lims.Lab, e domain.Entity) error {
		return lab.SetResult(e, result)
	}
}

func withInterim(name, value string) func(*lims.Lab, domain.Entity) error {
	return func(lab *lims.Lab, e domain.Entity) error {
		a, ok := e.(*lims.Analysis)
		if !ok {
			return fmt.Errorf("%s is not an analysis", e.UID())
		}
		return lab.SetInterim(a, name, value)
	}
}

// demoScenario walks the built-in lab from registration to publication.
var demoScenario = []demoStep{
	{actor: "clerk", uid: "AR-0001", transition: lims.NoSamplingWorkflow},
	{actor: "clerk", uid: "S-0001-P01", transition: lims.Receive},
	{actor: "clerk", uid: "S-0001-P02", transition: lims.Receive},
	{actor: "clerk", uid: "S-0001-P03", transition: lims.Receive},
	{actor: "analyst", uid: "AN-0001", transition: lims.Submit, prepare: withResult("42")},
	{actor: "analyst", uid: "AN-0002", transition: lims.Submit, prepare: withResult("18")},
	{actor: "analyst", uid: "AN-0003", transition: lims.Submit, prepare: withInterim("dilution", "2")},
	{actor: "analyst", uid: "REF-0001", transition: lims.Submit, prepare: withResult("10.0")},
	{actor: "analyst", uid: "AN-0001", transition: lims.Verify},
	{actor: "supervisor", uid: "AN-0001", transition: lims.Verify},
	{actor: "supervisor", uid: "AN-0002", transition: lims.Verify},
	{actor: "supervisor", uid: "AN-0003", transition: lims.Verify},
	{actor: "supervisor", uid: "REF-0001", transition: lims.Verify},
	{actor: "supervisor", uid: "AR-0001", transition: lims.Publish},
}

// demoWatch lists the entities whose states are printed after each step.
var demoWatch = []string{"S-0001", "AR-0001", "WS-0001"}

func runDemo(ctx context.Context, w io.Writer, s *session) error {
	for i, step := range demoScenario {
		e, err := s.lab.Resolve(ctx, step.uid)
		if err != nil {
			return err
		}
		if step.prepare != nil {
			if err := step.prepare(s.lab, e); err != nil {
				return err
			}
		}

		var outcome domain.Outcome
		err = s.runner.Do(ctx, action.KeyOf(e), step.actor, func(ctx context.Context) error {
			outcome = s.engine.Perform(ctx, e, step.transition, domain.WithComment("demo step"))
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%2d. %-10s %-10s %-20s %s\n", i+1, step.actor, step.uid, step.transition, tui.FormatOutcome(w, outcome))
		if outcome.Failed() {
			return fmt.Errorf("step %d: %w", i+1, outcome.Err)
		}

		for _, uid := range demoWatch {
			watched, err := s.lab.Resolve(ctx, uid)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "      %s=%s", uid, s.engine.State(ctx, watched, domain.AxisReview))
		}
		fmt.Fprintln(w)
	}
	return nil
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the built-in lab scenario step by step",
	Long: `Opens the built-in demo lab (a water sample in three bottles, one request, one
worksheet) and walks it from registration to publication, printing the outcome of
each step and the states of the sample, the request and the worksheet.`,
	Run: func(cmd *cobra.Command, args []string) {
		if quiet, _ := cmd.Flags().GetBool("no-banner"); !quiet {
			tui.PrintBanner(os.Stdout)
		}

		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			fmt.Printf("Error opening lab: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = s.close() }()

		if err := runDemo(ctx, os.Stdout, s); err != nil {
			fmt.Printf("Demo failed: %v\n", err)
			_ = s.close()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().Bool("no-banner", false, "Do not print the banner")
}
