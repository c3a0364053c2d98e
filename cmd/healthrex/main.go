// Command healthrex materializes lab cohort tables and feature tables in
// BigQuery.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/alee2022/AIHC-EHR-2023/jobs"
	"github.com/alee2022/AIHC-EHR-2023/warehouse"
)

var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "healthrex",
	Short: "Build STARR lab cohorts and feature tables in BigQuery",
	Long: `healthrex builds cohort tables of labeled lab observations and feature
tables keyed to those observations. Every command renders a BigQuery query,
submits it and waits for the destination table to be written.

Cohort tables are always replaced. Feature tables are created on first use and
appended to afterwards. Use --display-query to print the SQL without running it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger(viper.GetString("log_level"), viper.GetBool("dev"))
		return err
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./healthrex.yaml or ~/.config/healthrex/healthrex.yaml)")
	flags.String("project", "mining-clinical-decisions", "Google Cloud project that runs (and is billed for) the queries")
	flags.String("dataset", "", "working dataset that cohort and feature tables are written to")
	flags.String("source-project", "som-nero-phi-jonc101", "project holding the STARR source tables")
	flags.String("source-dataset", "shc_core_2021", "dataset holding the STARR source tables")
	flags.String("mapping-project", "mining-clinical-decisions", "project holding code mapping tables")
	flags.String("mapping-dataset", "mapdata", "dataset holding code mapping tables")
	flags.String("location", "", "BigQuery job location (default: inferred from the datasets)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("dev", false, "human-readable development logging")

	for key, flag := range map[string]string{
		"project":         "project",
		"dataset":         "dataset",
		"source_project":  "source-project",
		"source_dataset":  "source-dataset",
		"mapping_project": "mapping-project",
		"mapping_dataset": "mapping-dataset",
		"location":        "location",
		"log_level":       "log-level",
		"dev":             "dev",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	// A missing .env is normal
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("healthrex")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "healthrex"))
		}
	}

	viper.SetEnvPrefix("HEALTHREX")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// defaults collects the configured table locations.
func defaults() jobs.Defaults {
	return jobs.Defaults{
		Project:        viper.GetString("project"),
		Dataset:        viper.GetString("dataset"),
		SourceProject:  viper.GetString("source_project"),
		SourceDataset:  viper.GetString("source_dataset"),
		MappingProject: viper.GetString("mapping_project"),
		MappingDataset: viper.GetString("mapping_dataset"),
	}
}

func connect(ctx context.Context) (*warehouse.WrappedBigQuery, error) {
	return warehouse.Connect(ctx, viper.GetString("project"), viper.GetString("location"), logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()

	if err != nil {
		logger.Error("healthrex failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
