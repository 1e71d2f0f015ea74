package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/model"
)

var (
	verifyIndustry string
	verifyTerm     string
	verifyLocation string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <observations.json>",
	Short: "Run one verification batch from a file of raw observations",
	Long:  "Reads a JSON array of raw business observations, normalizes and deduplicates them, saves canonical records, and verifies them against the registry.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "cmd: read observations %s", args[0])
		}

		var observations []model.RawObservation
		if err := json.Unmarshal(data, &observations); err != nil {
			return eris.Wrap(err, "cmd: parse observations")
		}

		// Batch-level defaults for observations that don't carry their own.
		for i := range observations {
			if observations[i].Industry == "" {
				observations[i].Industry = verifyIndustry
			}
			if observations[i].SearchTerm == "" {
				observations[i].SearchTerm = verifyTerm
			}
			if observations[i].SearchLocation == "" {
				observations[i].SearchLocation = verifyLocation
			}
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Pipeline.Run(ctx, verifyIndustry, observations)
		if err != nil {
			return err
		}

		if verifyTerm != "" {
			if err := env.Store.LogSearch(ctx, verifyIndustry, verifyTerm, verifyLocation, stats.Found); err != nil {
				zap.L().Warn("search history not recorded", zap.Error(err))
			}
		}

		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return eris.Wrap(err, "cmd: marshal stats")
		}
		fmt.Println(string(out))

		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyIndustry, "industry", "", "industry label for the batch")
	verifyCmd.Flags().StringVar(&verifyTerm, "term", "", "search term the observations came from")
	verifyCmd.Flags().StringVar(&verifyLocation, "location", "", "search location the observations came from")
	rootCmd.AddCommand(verifyCmd)
}
