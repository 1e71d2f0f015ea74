package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/listings-cli/pkg/registry"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <company-number>",
	Short: "Fetch the registry profile and officers for a company number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Registry.APIKey == "" {
			return eris.New("cmd: registry.api_key is required for lookups")
		}

		client := registry.NewClient(cfg.Registry.APIKey,
			registry.WithBaseURL(cfg.Registry.BaseURL),
			registry.WithQuota(cfg.Registry.QuotaCalls, time.Duration(cfg.Registry.QuotaPeriodSecs)*time.Second),
			registry.WithCooldown(time.Duration(cfg.Registry.CooldownSecs)*time.Second),
		)

		ctx := cmd.Context()
		number := args[0]

		profile, err := client.GetCompanyProfile(ctx, number)
		if err != nil {
			return err
		}
		if profile == nil {
			return eris.Errorf("cmd: no registry record for %s", number)
		}

		officers, err := client.GetOfficers(ctx, number)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(struct {
			Profile  *registry.CompanyProfile `json:"profile"`
			Officers []registry.Officer       `json:"officers,omitempty"`
		}{profile, officers}, "", "  ")
		if err != nil {
			return eris.Wrap(err, "cmd: marshal lookup")
		}
		fmt.Println(string(out))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}
