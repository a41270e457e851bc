package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/elonfeng/fingest/internal/store/migrations"
	"github.com/elonfeng/fingest/pkg/record"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fingest",
		Short:         "Normalize and store financial news from multiple sources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(collectCmd())
	root.AddCommand(runsCmd())
	root.AddCommand(sourcesCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <" + strings.Join(migrations.Commands, "|") + ">",
		Short:     "Manage the database schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: migrations.Commands,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.OutOrStdout(), args[0])
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Register the known sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.OutOrStdout())
		},
	}
}

func ingestCmd() *cobra.Command {
	var (
		sourceName string
		seed       bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ingest --source <name> <file.jsonl>...",
		Short: "Ingest raw records from JSONL files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd.OutOrStdout(), sourceName, args, seed, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&sourceName, "source", "", "source name ("+strings.Join(record.Names(), ", ")+")")
	cmd.Flags().BoolVar(&seed, "seed", false, "register the known sources first")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the report as JSON")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func collectCmd() *cobra.Command {
	var (
		sources    []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run the enabled collectors once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), cmd.OutOrStdout(), sources, jsonOutput)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "specific sources to collect (e.g., benzinga,reddit)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output reports as JSON")
	return cmd
}

func runsCmd() *cobra.Command {
	var (
		sourceName string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent ingest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd.Context(), cmd.OutOrStdout(), sourceName, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&sourceName, "source", "", "only runs of this source")
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func sourcesCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Show registered sources and their row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSources(cmd.Context(), cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
