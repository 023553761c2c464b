package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect selects the DDL flavour used by Migrate.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// Capacity columns carry CHECK constraints so that a bug in the
// application layer cannot persist a negative or oversized counter.
// MySQL enforces CHECK from 8.0.16 on.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS masses (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		location VARCHAR(200) NOT NULL,
		scheduled_at_ms BIGINT NOT NULL,
		intention_total INT NOT NULL,
		intention_remaining INT NOT NULL,
		thanksgiving_total INT NOT NULL,
		thanksgiving_remaining INT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'AVAILABLE',
		created_at_ms BIGINT NOT NULL,
		updated_at_ms BIGINT NOT NULL,
		CONSTRAINT chk_masses_intention CHECK (intention_remaining >= 0 AND intention_remaining <= intention_total),
		CONSTRAINT chk_masses_thanksgiving CHECK (thanksgiving_remaining >= 0 AND thanksgiving_remaining <= thanksgiving_total),
		CONSTRAINT chk_masses_status CHECK (status IN ('AVAILABLE', 'FULL')),
		INDEX idx_masses_scheduled (scheduled_at_ms)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		mass_id BIGINT UNSIGNED NOT NULL,
		requester_id BIGINT UNSIGNED NOT NULL,
		pool VARCHAR(16) NOT NULL,
		payload TEXT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
		created_at_ms BIGINT NOT NULL,
		updated_at_ms BIGINT NOT NULL,
		CONSTRAINT fk_reservations_mass FOREIGN KEY (mass_id) REFERENCES masses(id) ON DELETE RESTRICT,
		CONSTRAINT chk_reservations_pool CHECK (pool IN ('INTENTION', 'THANKSGIVING')),
		CONSTRAINT chk_reservations_status CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
		INDEX idx_reservations_requester (requester_id),
		INDEX idx_reservations_mass_pool (mass_id, pool, status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS activity_records (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		actor_id BIGINT UNSIGNED NOT NULL,
		audience VARCHAR(16) NOT NULL,
		description VARCHAR(500) NOT NULL,
		entity_type VARCHAR(32) NOT NULL,
		entity_id BIGINT UNSIGNED NOT NULL,
		created_at_ms BIGINT NOT NULL,
		INDEX idx_activity_audience_actor (audience, actor_id, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS masses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		location TEXT NOT NULL,
		scheduled_at_ms INTEGER NOT NULL,
		intention_total INTEGER NOT NULL,
		intention_remaining INTEGER NOT NULL,
		thanksgiving_total INTEGER NOT NULL,
		thanksgiving_remaining INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'AVAILABLE',
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		CHECK (intention_remaining >= 0 AND intention_remaining <= intention_total),
		CHECK (thanksgiving_remaining >= 0 AND thanksgiving_remaining <= thanksgiving_total),
		CHECK (status IN ('AVAILABLE', 'FULL'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_masses_scheduled ON masses(scheduled_at_ms)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mass_id INTEGER NOT NULL REFERENCES masses(id) ON DELETE RESTRICT,
		requester_id INTEGER NOT NULL,
		pool TEXT NOT NULL CHECK (pool IN ('INTENTION', 'THANKSGIVING')),
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_requester ON reservations(requester_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_mass_pool ON reservations(mass_id, pool, status)`,
	`CREATE TABLE IF NOT EXISTS activity_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_id INTEGER NOT NULL,
		audience TEXT NOT NULL,
		description TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		created_at_ms INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_audience_actor ON activity_records(audience, actor_id, id)`,
}

// Migrate creates the tables used by the reservation engine.  Statements are
// executed one at a time because the MySQL driver rejects multi-statement
// strings unless multiStatements is enabled.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	var stmts []string
	switch d {
	case MySQL:
		stmts = mysqlSchema
	case SQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("migrate: unknown dialect %q", d)
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: statement %d: %w", i+1, err)
		}
	}
	return nil
}
