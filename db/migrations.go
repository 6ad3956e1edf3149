package db

import "database/sql"

// schemaVersion tracks the current shape of rfc003_swaps. Bumping it
// and appending to migrations is how future column changes ship,
// mirroring the teacher's own incremental schema-versioning approach
// in core/rawdb (a small ordered list of idempotent steps) rather than
// pulling in a migration framework for one table.
const schemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rfc003_swaps (
		swap_id                 BLOB PRIMARY KEY,
		role                    INTEGER NOT NULL,
		counterparty_peer_id    BLOB NOT NULL,
		alpha_ledger            TEXT NOT NULL,
		beta_ledger             TEXT NOT NULL,
		alpha_asset             TEXT NOT NULL,
		beta_asset              TEXT NOT NULL,
		alpha_expiry            TIMESTAMP NOT NULL,
		beta_expiry             TIMESTAMP NOT NULL,
		secret_hash             TEXT NOT NULL,
		alpha_refund_identity   TEXT NOT NULL,
		beta_redeem_identity    TEXT NOT NULL,
		alpha_redeem_identity   TEXT,
		beta_refund_identity    TEXT,
		decision                INTEGER NOT NULL,
		decline_reason          TEXT,
		completed_at            TIMESTAMP,
		created_at              TIMESTAMP NOT NULL
	)`,
}

// migrate runs every statement in migrations and records schemaVersion,
// the way a first-boot and an upgraded-boot both converge on the same
// schema without a separate "is this a fresh database" branch.
func migrate(db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	var count int
	row := db.QueryRow(`SELECT COUNT(*) FROM schema_meta`)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		_, err := db.Exec(`INSERT INTO schema_meta (version) VALUES (?)`, schemaVersion)
		return err
	}
	return nil
}
