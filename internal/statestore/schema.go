// Package statestore persists trades, positions, the settlement queue, the
// circuit breaker's daily record, and realized P&L — backed by Postgres in
// production with a ConsoleStore fallback for local runs without a database.
package statestore

import "embed"

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsDir = "migrations"
