package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"autorenew/internal/config"
	"autorenew/internal/orchestrator"
	"autorenew/internal/utils"
)

var (
	envFile   string
	historyDB string
)

func main() {
	root := &cobra.Command{
		Use:   "autorenew",
		Short: "Renew expiring hosting contracts through the provider's PIN-gated flow",
		RunE:  run,

		SilenceUsage: true,
	}
	root.Flags().StringVar(&envFile, "env-file", "", "env file to load before reading the environment")
	root.Flags().StringVar(&historyDB, "history-db", "", "path to the run-history database (disabled when empty)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if historyDB != "" {
		cfg.HistoryDBPath = historyDB
	}

	renewer, err := orchestrator.New(cfg)
	if err != nil {
		return err
	}
	utils.SetupSignalHandling(renewer.ShutdownFlag())

	start := time.Now()
	if err := renewer.Run(cmd.Context()); err != nil {
		return err
	}

	fmt.Printf("🏁 finished in %s\n", utils.FormatDuration(time.Since(start)))
	return nil
}
