package migrations

// Package migrations carries the embedded schema for both backends:
// postgres/ defines the backtest_runs and market_states tables,
// clickhouse/ the rate_observations and backtest_rows series tables.

import "embed"

//go:embed postgres/*.sql clickhouse/*.sql
var schemaFS embed.FS
