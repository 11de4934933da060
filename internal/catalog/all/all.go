// Package all registers every catalog backend.
package all

import (
	_ "telemetry/internal/catalog/athena"
	_ "telemetry/internal/catalog/duckdb"
	_ "telemetry/internal/catalog/postgres"
	_ "telemetry/internal/catalog/sqlite"
)
