package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "gocausal-dev",
		Short:         "gocausal development tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading CAUSAL_* variables")

	env := func() (*harness, error) { return newHarness(envFile, rootCmd.ErrOrStderr()) }
	rootCmd.AddCommand(
		newScenarioCmd(env),
		newSmokeTestCmd(env),
		newDeterminismTestCmd(env),
	)
	return rootCmd
}

func newScenarioCmd(env func() (*harness, error)) *cobra.Command {
	var opts scenarioOptions
	cmd := &cobra.Command{
		Use:   "scenario [binary|multi-arm|limited-overlap]",
		Short: "Run one estimator on a synthetic scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := env()
			if err != nil {
				return err
			}
			opts.scenario = args[0]
			return h.runScenario(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.kind, "estimator", "", "estimator kind (defaults to CAUSAL_ESTIMATOR)")
	cmd.Flags().IntVar(&opts.treated, "treated", 1, "treated arm")
	cmd.Flags().IntVar(&opts.baseline, "baseline", 0, "baseline arm")
	cmd.Flags().IntVar(&opts.rows, "rows", 2000, "number of synthetic units")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 42, "generator seed")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the run summary as JSON")
	return cmd
}

func newSmokeTestCmd(env func() (*harness, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "smoke",
		Short: "Run every estimator kind on the binary scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := env()
			if err != nil {
				return err
			}
			return h.runSmokeTests(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newDeterminismTestCmd(env func() (*harness, error)) *cobra.Command {
	var seed uint64
	cmd := &cobra.Command{
		Use:   "determinism [estimator]",
		Short: "Run an estimator twice on identical inputs and compare results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := env()
			if err != nil {
				return err
			}
			return h.testDeterminism(cmd.Context(), cmd.OutOrStdout(), args[0], seed)
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 42, "generator seed")
	return cmd
}
