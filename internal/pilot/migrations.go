package pilot

import (
	"database/sql"

	"github.com/sensorvision/pilot/pkg/plugin"
)

// migrations returns the Pilot module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create usage ledger table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS pilot_usage (
						id             TEXT PRIMARY KEY,
						org_id         TEXT NOT NULL,
						user_id        TEXT NOT NULL DEFAULT '',
						provider       TEXT NOT NULL,
						model_id       TEXT NOT NULL DEFAULT '',
						feature        TEXT NOT NULL,
						input_tokens   INTEGER NOT NULL DEFAULT 0,
						output_tokens  INTEGER NOT NULL DEFAULT 0,
						total_tokens   INTEGER NOT NULL DEFAULT 0,
						cost_cents     INTEGER NOT NULL DEFAULT 0,
						latency_ms     INTEGER NOT NULL DEFAULT 0,
						success        INTEGER NOT NULL DEFAULT 0,
						error_message  TEXT NOT NULL DEFAULT '',
						reference_type TEXT NOT NULL DEFAULT '',
						reference_id   TEXT NOT NULL DEFAULT '',
						created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_pilot_usage_org_created ON pilot_usage(org_id, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_pilot_usage_user_created ON pilot_usage(user_id, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_pilot_usage_feature ON pilot_usage(feature)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
