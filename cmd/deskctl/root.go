package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/energydesk/market-engine/internal/catalog"
	"github.com/energydesk/market-engine/internal/engine"
	"github.com/energydesk/market-engine/internal/notify"
	"github.com/energydesk/market-engine/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootConfig struct {
	Seed    uint64
	Trader  string
	DBPath  string
	JSON    bool
	Verbose bool
}

func newRootCmd() *cobra.Command {
	rc := &rootConfig{}
	cmd := &cobra.Command{
		Use:           "deskctl",
		Short:         "Simulated commodity desk toolkit",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if rc.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	f := cmd.PersistentFlags()
	f.Uint64Var(&rc.Seed, "seed", 1, "market seed; equal seeds replay identical price paths")
	f.StringVar(&rc.Trader, "trader", "default", "trader namespace in the store")
	f.StringVar(&rc.DBPath, "db", "", "SQLite file to load and persist the desk (in-memory when empty)")
	f.BoolVar(&rc.JSON, "json", false, "print JSON instead of tables")
	f.BoolVarP(&rc.Verbose, "verbose", "v", false, "log desk events to stderr")

	cmd.AddCommand(
		newSimulateCmd(rc),
		newChainCmd(rc),
		newStressCmd(rc),
		newInstrumentsCmd(rc),
		newVersionCmd(),
	)
	return cmd
}

// openDesk builds a desk over the configured store. The returned func
// releases the store.
func (rc *rootConfig) openDesk(ctx context.Context) (*engine.Desk, func(), error) {
	var (
		st      store.Store = store.NewMemoryStore()
		release             = func() {}
	)
	if rc.DBPath != "" {
		lite, err := store.NewSQLiteStore(rc.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		st = lite
		release = func() { lite.Close() }
	}

	desk := engine.New(ctx, catalog.Default(), engine.Config{Seed: rc.Seed}, engine.Deps{
		Ledger: store.NewLedger(st, rc.Trader),
		Sink:   notify.LogSink{Logger: slog.Default()},
	})
	return desk, release, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the deskctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deskctl %s\n", version)
		},
	}
}
