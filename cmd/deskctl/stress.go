package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/energydesk/market-engine/internal/catalog"
)

func newStressCmd(rc *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Apply the historical stress scenarios to the stored desk",
		RunE: func(cmd *cobra.Command, args []string) error {
			desk, release, err := rc.openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			results := desk.Stress()
			if rc.JSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SCENARIO\tNG\tPOWER\tCRUDE\tFREIGHT\tIMPACT")
			for _, r := range results {
				s := r.Scenario
				fmt.Fprintf(tw, "%s\t%+.0f%%\t%+.0f%%\t%+.0f%%\t%+.0f%%\t%s\n",
					s.Name, s.Gas, s.Power, s.Crude, s.Freight, r.Impact.StringFixed(2))
			}
			return tw.Flush()
		},
	}
}

func newInstrumentsCmd(rc *rootConfig) *cobra.Command {
	var sector string
	cmd := &cobra.Command{
		Use:   "instruments",
		Short: "List the instrument catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := catalog.Default()
			list := cat.Instruments()
			if sector != "" {
				s, err := catalog.ParseSector(sector)
				if err != nil {
					return err
				}
				list = cat.BySector(s)
			}
			if rc.JSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSECTOR\tBASE\tVOL%\tUNIT")
			for _, inst := range list {
				fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.2f\t%s\n",
					inst.Name, inst.Sector, inst.BasePrice, inst.VolatilityPct, inst.Unit)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&sector, "sector", "", "only list this sector (ng, crude, power, ...)")
	return cmd
}
