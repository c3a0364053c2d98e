package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/guregu/null.v3"

	"github.com/alee2022/AIHC-EHR-2023/cohorts"
	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

var cohortCmd = &cobra.Command{
	Use:   "cohort",
	Short: "Build or inspect cohort tables",
}

var cohortBuildCmd = &cobra.Command{
	Use:   "build NAME",
	Short: "Replace a cohort table with a predefined lab cohort",
	Long: `build renders the named cohort's CREATE OR REPLACE TABLE statement and runs
it. The destination table is replaced, not appended to.

Predefined cohorts are listed by "healthrex list".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctor, ok := cohorts.Lookup(args[0])
		if !ok {
			return fmt.Errorf("unknown cohort %q (known: %v)", args[0], cohorts.Names())
		}

		d := defaults()
		table, _ := cmd.Flags().GetString("table")
		if table == "" {
			return fmt.Errorf("--table is required")
		}

		c := ctor(cohorts.CohortBuilder{Project: d.Project, Dataset: d.Dataset, Table: table}, d.Source())

		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		years, err := cohorts.ParseYearWindow(from, to, c.Years)
		if err != nil {
			return err
		}
		c.Years = years

		if cmd.Flags().Changed("sample-cap") {
			sampleCap, _ := cmd.Flags().GetInt64("sample-cap")
			c.SampleCap = null.IntFrom(sampleCap)
		}
		if noSample, _ := cmd.Flags().GetBool("no-sample"); noSample {
			c.SampleCap = null.Int{}
		}

		ctx := cmd.Context()
		if display, _ := cmd.Flags().GetBool("display-query"); display {
			verbose, _ := cmd.Flags().GetBool("verbose")
			// Cohorts never probe the warehouse, so no client is needed
			return displayJob(ctx, os.Stdout, nil, c, verbose)
		}

		BQ, err := connect(ctx)
		if err != nil {
			return err
		}
		defer BQ.Close()

		res, err := warehouse.Materialize(ctx, BQ, c)
		if err != nil {
			return err
		}

		fmt.Print(resultHeader)
		reportResult(os.Stdout, c, res)
		return nil
	},
}

var cohortSummarizeCmd = &cobra.Command{
	Use:   "summarize TABLE",
	Short: "Print observations per index year of a cohort table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := defaults()
		table, err := warehouse.ParseTableRef(qualify(args[0], d.Dataset), d.Project)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		BQ, err := connect(ctx)
		if err != nil {
			return err
		}
		defer BQ.Close()

		counts, err := cohorts.SummarizeYears(ctx, BQ, table)
		if err != nil {
			return err
		}

		fmt.Printf("year\tobservations\tpatients\n")
		for _, c := range counts {
			fmt.Printf("%d\t%d\t%d\n", c.Year, c.Observations, c.Patients)
		}
		return nil
	},
}

// qualify prefixes a bare table name with the working dataset.
func qualify(table, dataset string) string {
	if dataset == "" || strings.ContainsAny(table, ".:") {
		return table
	}
	return dataset + "." + table
}

func init() {
	cohortBuildCmd.Flags().String("table", "", "destination table in the working dataset")
	cohortBuildCmd.Flags().String("from", "", "first order year (e.g. 2015 or 2015-01-01; default: cohort's own)")
	cohortBuildCmd.Flags().String("to", "", "last order year, inclusive (default: cohort's own)")
	cohortBuildCmd.Flags().Int64("sample-cap", 0, "keep at most this many observations per index year")
	cohortBuildCmd.Flags().Bool("no-sample", false, "keep every observation, even if the cohort samples by default")
	cohortBuildCmd.Flags().Bool("display-query", false, "print the query and exit without running it")
	cohortBuildCmd.Flags().Bool("verbose", false, "with --display-query, also dump the resolved cohort parameters")
	cohortBuildCmd.MarkFlagsMutuallyExclusive("sample-cap", "no-sample")

	cohortCmd.AddCommand(cohortBuildCmd, cohortSummarizeCmd)
	rootCmd.AddCommand(cohortCmd)
}
