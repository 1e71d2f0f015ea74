package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/listings-cli/internal/config"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog [industry]",
	Short: "Show the collection plan from the industry catalog",
	Long:  "Prints the search term / location combinations a collection run would cover, for one industry or all of them.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := config.LoadCatalog(cfg.Catalog.Path)
		if err != nil {
			return err
		}

		industries := make([]string, 0, len(cat.Industries))
		if len(args) == 1 {
			industries = append(industries, args[0])
		} else {
			for name := range cat.Industries {
				industries = append(industries, name)
			}
			sort.Strings(industries)
		}

		type plan struct {
			Industry  string   `json:"industry"`
			Terms     []string `json:"terms"`
			Locations []string `json:"locations"`
			Searches  int      `json:"searches"`
		}
		plans := make([]plan, 0, len(industries))
		for _, ind := range industries {
			terms := cat.SearchTermsFor(ind)
			plans = append(plans, plan{
				Industry:  ind,
				Terms:     terms,
				Locations: cat.Locations,
				Searches:  len(terms) * len(cat.Locations),
			})
		}

		out, err := json.MarshalIndent(plans, "", "  ")
		if err != nil {
			return eris.Wrap(err, "cmd: marshal plan")
		}
		fmt.Println(string(out))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
