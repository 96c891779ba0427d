package db

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	embeddedmigrations "github.com/solatis/scorekeeper/migrations"
)

// schemaMigrationsDDL is valid for both SQLite and PostgreSQL. go-sqlite3
// scans TIMESTAMP columns into time.Time.
const schemaMigrationsDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL,
		duration_ms BIGINT NOT NULL
	)`

// MigrationStatus reports one embedded migration against the ledger.
type MigrationStatus struct {
	Version   string
	Checksum  string
	Applied   bool
	AppliedAt *time.Time
	Duration  time.Duration
}

type migration struct {
	version  string
	checksum string
	sql      string
}

type ledgerRow struct {
	Version    string    `db:"version"`
	Checksum   string    `db:"checksum"`
	AppliedAt  time.Time `db:"applied_at"`
	DurationMs int64     `db:"duration_ms"`
}

// MigrateUp applies every pending migration for the connection's driver,
// each in its own transaction. Applied migrations whose file changed or
// disappeared abort the run before anything is applied.
func MigrateUp(db *sqlx.DB) error {
	migrations, ledger, err := loadState(db)
	if err != nil {
		return err
	}

	known := make(map[string]string, len(migrations))
	for _, m := range migrations {
		known[m.version] = m.checksum
	}
	for version, row := range ledger {
		checksum, ok := known[version]
		if !ok {
			return fmt.Errorf("migration %s is applied but no longer embedded", version)
		}
		if checksum != row.Checksum {
			return fmt.Errorf("checksum mismatch for migration %s: embedded %s, applied %s", version, checksum, row.Checksum)
		}
	}

	for _, m := range migrations {
		if _, ok := ledger[m.version]; ok {
			continue
		}
		if err := apply(db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.version, err)
		}
	}
	return nil
}

// MigrateStatus lists the embedded migrations in order with their ledger state.
func MigrateStatus(db *sqlx.DB) ([]MigrationStatus, error) {
	migrations, ledger, err := loadState(db)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		s := MigrationStatus{Version: m.version, Checksum: m.checksum}
		if row, ok := ledger[m.version]; ok {
			at := row.AppliedAt
			s.Applied = true
			s.Checksum = row.Checksum
			s.AppliedAt = &at
			s.Duration = time.Duration(row.DurationMs) * time.Millisecond
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

// loadState reads the embedded migrations and the applied ledger,
// creating the ledger table on first use.
func loadState(db *sqlx.DB) ([]migration, map[string]ledgerRow, error) {
	migrations, err := embeddedMigrations(db.DriverName())
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.Exec(schemaMigrationsDDL); err != nil {
		return nil, nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var rows []ledgerRow
	if err := db.Select(&rows, "SELECT version, checksum, applied_at, duration_ms FROM schema_migrations"); err != nil {
		return nil, nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	ledger := make(map[string]ledgerRow, len(rows))
	for _, r := range rows {
		ledger[r.Version] = r
	}
	return migrations, ledger, nil
}

// embeddedMigrations returns the driver's *.sql files sorted by name.
func embeddedMigrations(driver string) ([]migration, error) {
	var (
		fsys embed.FS
		dir  string
	)
	switch driver {
	case "sqlite3":
		fsys, dir = embeddedmigrations.SqliteMigrations, "sqlite"
	case "postgres":
		fsys, dir = embeddedmigrations.PostgresMigrations, "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	files, err := fs.Glob(fsys, dir+"/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	migrations := make([]migration, 0, len(files))
	for _, file := range files {
		content, err := fsys.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		sum := sha256.Sum256(content)
		migrations = append(migrations, migration{
			version:  path.Base(file),
			checksum: hex.EncodeToString(sum[:]),
			sql:      string(content),
		})
	}
	return migrations, nil
}

func apply(db *sqlx.DB, m migration) error {
	start := time.Now()
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// lib/pq runs one statement per Exec.
	for _, stmt := range splitStatements(m.sql) {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}

	_, err = tx.Exec(
		tx.Rebind("INSERT INTO schema_migrations (version, checksum, applied_at, duration_ms) VALUES (?, ?, ?, ?)"),
		m.version, m.checksum, start.UTC(), time.Since(start).Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record: %w", err)
	}
	return tx.Commit()
}

// splitStatements drops "--" comment lines and splits on semicolons.
// Migration files must not put semicolons inside string literals.
func splitStatements(sql string) []string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var statements []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
