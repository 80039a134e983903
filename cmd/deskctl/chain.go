package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/energydesk/market-engine/internal/options"
)

func newChainCmd(rc *rootConfig) *cobra.Command {
	var (
		expiry  int
		strikes int
		ticks   int
	)

	cmd := &cobra.Command{
		Use:   "chain HUB",
		Short: "Print the option chain for an instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			desk, release, err := rc.openDesk(ctx)
			if err != nil {
				return err
			}
			defer release()

			if ticks > 0 {
				runSimulation(ctx, desk, ticks)
			}
			chain, err := desk.Chain(args[0], expiry, strikes)
			if err != nil {
				return err
			}
			if rc.JSON {
				return writeJSON(cmd.OutOrStdout(), chain)
			}
			printChain(cmd, chain)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&expiry, "expiry", 0, "delivery month index on the forward curve")
	f.IntVar(&strikes, "strikes", 9, "number of strikes around the money")
	f.IntVar(&ticks, "ticks", 0, "advance the market this many ticks first")
	return cmd
}

func printChain(cmd *cobra.Command, c options.Chain) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  fwd %.4f  T %.3fy  vol %.1f%%  ATM %.4f\n\n",
		c.Instrument, c.Forward, c.Expiry, c.BaseVol*100, c.ATMStrike)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "C.BID\tC.ASK\tC.DELTA\tSTRIKE\tIV\tP.BID\tP.ASK\tP.DELTA\t")
	for _, k := range c.Contracts {
		mark := ""
		if k.ATM {
			mark = "*"
		}
		fmt.Fprintf(tw, "%.4f\t%.4f\t%.3f\t%s%.4f\t%.1f%%\t%.4f\t%.4f\t%.3f\t\n",
			k.Call.Bid, k.Call.Ask, k.Call.Delta, mark, k.Strike, k.ImpliedVol*100,
			k.Put.Bid, k.Put.Ask, k.Put.Delta)
	}
	tw.Flush()
}
