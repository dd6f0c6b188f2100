package migrations

import "embed"

// PostgresFS holds the Postgres schema migrations, applied in filename order.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the archive table migrations.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
