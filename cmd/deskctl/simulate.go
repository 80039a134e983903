package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/energydesk/market-engine/internal/catalog"
	"github.com/energydesk/market-engine/internal/engine"
	"github.com/energydesk/market-engine/internal/model"
	"github.com/energydesk/market-engine/internal/risk"
)

type simulateSummary struct {
	Seed    uint64              `json:"seed"`
	Ticks   uint64              `json:"ticks"`
	Filled  int                 `json:"filled"`
	Expired int                 `json:"expired"`
	Closed  int                 `json:"closed"`
	Alerts  int                 `json:"alerts"`
	Trades  []model.Trade       `json:"trades"`
	Risk    risk.Snapshot       `json:"risk"`
	Stress  []risk.StressResult `json:"stress"`
}

func newSimulateCmd(rc *rootConfig) *cobra.Command {
	var (
		ticks    int
		hub      string
		typ      string
		side     string
		volume   float64
		stopLoss float64
		target   float64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the desk for a number of ticks, optionally opening a position first",
		Example: `  deskctl simulate --ticks 500 --hub "Henry Hub" --side BUY --volume 10000
  deskctl simulate --seed 42 --ticks 100 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ticks <= 0 {
				return fmt.Errorf("--ticks must be positive")
			}
			ctx := cmd.Context()
			desk, release, err := rc.openDesk(ctx)
			if err != nil {
				return err
			}
			defer release()

			if hub != "" {
				req, err := openingOrder(desk.Catalog(), hub, typ, side, volume, stopLoss, target)
				if err != nil {
					return err
				}
				if _, err := desk.Submit(ctx, req); err != nil {
					return fmt.Errorf("opening order: %w", err)
				}
			}

			sum := runSimulation(ctx, desk, ticks)
			sum.Seed = rc.Seed
			if rc.JSON {
				return writeJSON(cmd.OutOrStdout(), sum)
			}
			printSummary(cmd, sum)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&ticks, "ticks", "n", 100, "number of ticks to run")
	f.StringVar(&hub, "hub", "", "open a market position on this instrument before ticking")
	f.StringVar(&typ, "type", "", "instrument type code (defaults to the sector's first type)")
	f.StringVar(&side, "side", "BUY", "BUY or SELL")
	f.Float64Var(&volume, "volume", 10000, "position volume in native units")
	f.Float64Var(&stopLoss, "stop-loss", 0, "stop-loss price (0 for none)")
	f.Float64Var(&target, "target", 0, "target exit price (0 for none)")
	return cmd
}

func openingOrder(cat *catalog.Catalog, hub, typ, side string, volume, stopLoss, target float64) (model.OrderRequest, error) {
	inst, err := cat.Lookup(hub)
	if err != nil {
		return model.OrderRequest{}, err
	}
	var t catalog.InstrumentType
	if typ == "" {
		types := catalog.TypesFor(inst.Sector)
		if len(types) == 0 {
			return model.OrderRequest{}, fmt.Errorf("no tradable types for sector %s", inst.Sector)
		}
		t = types[0]
	} else if t, err = catalog.ParseInstrumentType(typ); err != nil {
		return model.OrderRequest{}, err
	}

	req := model.OrderRequest{
		Sector:    inst.Sector,
		Type:      t,
		Hub:       inst.Name,
		Direction: model.Direction(strings.ToUpper(side)),
		Volume:    decimal.NewFromFloat(volume),
		OrderType: model.Market,
	}
	if stopLoss > 0 {
		req.StopLoss = &stopLoss
	}
	if target > 0 {
		req.Target = &target
	}
	return req, nil
}

func runSimulation(ctx context.Context, desk *engine.Desk, ticks int) simulateSummary {
	var sum simulateSummary
	for _, rep := range engine.RunN(ctx, desk, ticks) {
		sum.Filled += rep.Pending.Filled
		sum.Expired += rep.Pending.Expired
		sum.Closed += rep.Exits.StopLosses + rep.Exits.Targets
		sum.Alerts += rep.Alerts
	}
	sum.Ticks = desk.Ticks()
	sum.Trades = desk.Trades()
	sum.Risk = desk.Risk()
	sum.Stress = desk.Stress()
	return sum
}

func printSummary(cmd *cobra.Command, sum simulateSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "seed %d, %d ticks: %d filled, %d expired, %d auto-closed, %d alerts\n\n",
		sum.Seed, sum.Ticks, sum.Filled, sum.Expired, sum.Closed, sum.Alerts)

	if len(sum.Trades) > 0 {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tHUB\tSIDE\tVOLUME\tENTRY\tSTATUS\tREALIZED")
		for _, t := range sum.Trades {
			realized := "-"
			if t.RealizedPnL.Valid {
				realized = t.RealizedPnL.Decimal.StringFixed(2)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.4f\t%s\t%s\n",
				t.ID, t.Hub, t.Direction, t.Volume.String(), t.EntryPrice, t.Status, realized)
		}
		tw.Flush()
		fmt.Fprintln(out)
	}

	r := sum.Risk
	fmt.Fprintf(out, "equity      %s\n", r.Equity.StringFixed(2))
	fmt.Fprintf(out, "realized    %s\n", r.Realized.StringFixed(2))
	fmt.Fprintf(out, "unrealized  %s\n", r.Unrealized.StringFixed(2))
	fmt.Fprintf(out, "VaR95/99    %s / %s\n", r.VaR95.StringFixed(2), r.VaR99.StringFixed(2))
	fmt.Fprintf(out, "CVaR95/99   %s / %s\n", r.CVaR95.StringFixed(2), r.CVaR99.StringFixed(2))
	fmt.Fprintf(out, "sharpe      %s\n", formatStat(r.Sharpe))
	fmt.Fprintf(out, "win rate    %s\n", formatStat(r.WinRate))
}

func formatStat(s risk.Stat) string {
	switch {
	case !s.Available:
		return "n/a"
	case s.Unbounded:
		return "unbounded"
	}
	return fmt.Sprintf("%.3f", s.Value)
}
