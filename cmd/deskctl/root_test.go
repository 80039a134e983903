package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energydesk/market-engine/internal/risk"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestSimulate_SameSeedSameResult(t *testing.T) {
	args := []string{"simulate", "--seed", "42", "--ticks", "25", "--hub", "Henry Hub", "--volume", "10000", "--json"}
	var first, second simulateSummary
	require.NoError(t, json.Unmarshal([]byte(run(t, args...)), &first))
	require.NoError(t, json.Unmarshal([]byte(run(t, args...)), &second))

	assert.Equal(t, uint64(25), first.Ticks)
	require.Len(t, first.Trades, 1)
	require.Len(t, second.Trades, 1)
	assert.Equal(t, "Henry Hub", first.Trades[0].Hub)
	assert.Equal(t, first.Trades[0].EntryPrice, second.Trades[0].EntryPrice)
	assert.True(t, first.Risk.Unrealized.Equal(second.Risk.Unrealized), "identical seeds mark identically")
	assert.Len(t, first.Stress, len(risk.Scenarios()))
}

func TestSimulate_PersistsToSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "desk.db")
	run(t, "simulate", "--db", db, "--ticks", "5", "--hub", "WTI Cushing", "--volume", "1000", "--json")

	var sum simulateSummary
	out := run(t, "simulate", "--db", db, "--ticks", "5", "--json")
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, uint64(10), sum.Ticks, "second run continues the stored market")
	assert.Len(t, sum.Trades, 1)
}

func TestChainAndStressTables(t *testing.T) {
	out := run(t, "chain", "Henry Hub", "--strikes", "5")
	assert.Contains(t, out, "STRIKE")
	assert.Equal(t, 5+3, strings.Count(out, "\n"), "header line, blank line, column header, one row per strike")

	out = run(t, "stress")
	for _, s := range risk.Scenarios() {
		assert.Contains(t, out, s.Name)
	}
}

func TestSimulate_RejectsBadInput(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"simulate", "--hub", "Atlantis Hub"})
	assert.Error(t, cmd.Execute())
}
