package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alee2022/AIHC-EHR-2023/cohorts"
	"github.com/alee2022/AIHC-EHR-2023/extractors"
	"github.com/alee2022/AIHC-EHR-2023/jobs"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every cohort and extractor job in a jobs file",
	Long: `run resolves every job in the jobs file before submitting any of them, then
runs cohorts followed by extractors, each in file order. It stops at the first
failed job; tables written by earlier jobs are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")

		f, err := jobs.Load(path)
		if err != nil {
			return err
		}

		resolved, err := f.Resolve(defaults())
		if err != nil {
			return err
		}
		logger.Info("Loaded jobs file", zap.String("path", path), zap.Int("jobs", len(resolved)))

		ctx := cmd.Context()
		BQ, err := connect(ctx)
		if err != nil {
			return err
		}
		defer BQ.Close()

		if display, _ := cmd.Flags().GetBool("display-query"); display {
			verbose, _ := cmd.Flags().GetBool("verbose")
			return displayPlan(ctx, os.Stdout, BQ, resolved, verbose)
		}

		results, err := jobs.Run(ctx, BQ, resolved, logger)

		fmt.Print(resultHeader)
		for i, res := range results {
			reportResult(os.Stdout, resolved[i], res)
		}

		return err
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the predefined cohorts and extractors",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cohorts:")
		for _, name := range cohorts.Names() {
			fmt.Println("  " + name)
		}
		fmt.Println("extractors:")
		for _, name := range extractors.Names() {
			fmt.Println("  " + name)
		}
	},
}

var jobsInitCmd = &cobra.Command{
	Use:   "init PATH",
	Short: "Write an example jobs file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataset := defaults().Dataset
		if dataset == "" {
			dataset = "my_dataset"
		}
		if err := jobs.Init(args[0], dataset); err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "Wrote", args[0])
		return nil
	},
}

func init() {
	runCmd.Flags().StringP("file", "f", "jobs.yaml", "jobs file")
	runCmd.Flags().Bool("display-query", false, "print every query in run order and exit without running them")
	runCmd.Flags().Bool("verbose", false, "with --display-query, also dump the resolved job parameters")

	jobsCmd := &cobra.Command{Use: "jobs", Short: "Manage jobs files"}
	jobsCmd.AddCommand(jobsInitCmd)

	rootCmd.AddCommand(runCmd, listCmd, jobsCmd)
}
