package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alee2022/AIHC-EHR-2023/extractors"
	"github.com/alee2022/AIHC-EHR-2023/jobs"
	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract features for a cohort or inspect a feature table",
}

var extractRunCmd = &cobra.Command{
	Use:   "run NAME",
	Short: "Write one extractor's features for a cohort into a feature table",
	Long: `run joins the cohort table to the extractor's source events, keeping only
events strictly before each observation's index time, and writes the rows to
the feature table. The feature table is created if it does not exist and
appended to if it does.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec := jobs.ExtractorSpec{Name: args[0]}
		spec.Cohort, _ = cmd.Flags().GetString("cohort")
		spec.Features, _ = cmd.Flags().GetString("features")
		spec.FeatureColumn, _ = cmd.Flags().GetString("feature-column")
		spec.Mapping, _ = cmd.Flags().GetString("mapping")
		if cmd.Flags().Changed("look-back-days") {
			days, _ := cmd.Flags().GetInt64("look-back-days")
			spec.LookBackDays = &days
		}

		resolved, err := (&jobs.File{Extractors: []jobs.ExtractorSpec{spec}}).Resolve(defaults())
		if err != nil {
			return err
		}
		job := resolved[0]

		ctx := cmd.Context()
		BQ, err := connect(ctx)
		if err != nil {
			return err
		}
		defer BQ.Close()

		// The statement depends on whether the feature table exists, so even
		// display mode needs the warehouse.
		if display, _ := cmd.Flags().GetBool("display-query"); display {
			verbose, _ := cmd.Flags().GetBool("verbose")
			return displayJob(ctx, os.Stdout, BQ, job, verbose)
		}

		res, err := warehouse.Materialize(ctx, BQ, job)
		if err != nil {
			return err
		}

		fmt.Print(resultHeader)
		reportResult(os.Stdout, job, res)
		return nil
	},
}

var extractSummarizeCmd = &cobra.Command{
	Use:   "summarize TABLE",
	Short: "Print feature counts per feature type of a feature table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := defaults()
		table, err := warehouse.ParseTableRef(qualify(args[0], d.Dataset), d.Project)
		if err != nil {
			return err
		}
		featureType, _ := cmd.Flags().GetString("feature-type")

		ctx := cmd.Context()
		BQ, err := connect(ctx)
		if err != nil {
			return err
		}
		defer BQ.Close()

		counts, err := extractors.SummarizeFeatures(ctx, BQ, table, featureType)
		if err != nil {
			return err
		}

		fmt.Printf("feature_type\tobservations\tfeatures\tdistinct_features\n")
		for _, c := range counts {
			fmt.Printf("%s\t%d\t%d\t%d\n", c.FeatureType, c.Observations, c.Features, c.Distinct)
		}
		return nil
	},
}

func init() {
	extractRunCmd.Flags().String("cohort", "", "cohort table: a table in the working dataset, dataset.table, or project.dataset.table")
	extractRunCmd.Flags().String("features", "", "feature table to create or append to (same forms as --cohort)")
	extractRunCmd.Flags().Int64("look-back-days", 0, "only keep events within this many days before the index time")
	extractRunCmd.Flags().String("feature-column", "", "order_med column used as the feature name (MedicationExtractor only)")
	extractRunCmd.Flags().String("mapping", "", "ICD-10 to CCSR mapping table (PatientProblemGroupExtractor only)")
	extractRunCmd.Flags().Bool("display-query", false, "print the query and exit without running it")
	extractRunCmd.Flags().Bool("verbose", false, "with --display-query, also dump the resolved extractor parameters")
	_ = extractRunCmd.MarkFlagRequired("cohort")
	_ = extractRunCmd.MarkFlagRequired("features")

	extractSummarizeCmd.Flags().String("feature-type", "", "only count this feature type (e.g. MedicationExtractor)")

	extractCmd.AddCommand(extractRunCmd, extractSummarizeCmd)
	rootCmd.AddCommand(extractCmd)
}
