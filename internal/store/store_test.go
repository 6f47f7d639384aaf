package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sensorvision/pilot/pkg/plugin"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pilot.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New(%q): %v", path, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTable(stmt string) func(tx *sql.Tx) error {
	return func(tx *sql.Tx) error {
		_, err := tx.Exec(stmt)
		return err
	}
}

func TestNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file: %v", err)
	}

	var mode string
	if err := s.DB().QueryRowContext(t.Context(), "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := s.DB().QueryRowContext(t.Context(), "PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestNewInvalidPath(t *testing.T) {
	if _, err := New("/nonexistent/path/to/db"); err == nil {
		t.Error("expected error for unwritable path")
	}
}

func TestTx(t *testing.T) {
	s := openStore(t)
	ctx := t.Context()

	if _, err := s.DB().ExecContext(ctx, "CREATE TABLE readings (id INTEGER PRIMARY KEY, value REAL)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO readings (id, value) VALUES (1, 21.5)")
		return err
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	sentinel := errors.New("abort")
	err = s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO readings (id, value) VALUES (2, 99)"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("rollback err = %v, want sentinel", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM readings").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want only the committed one", count)
	}
}

func TestMigrate(t *testing.T) {
	s := openStore(t)
	ctx := t.Context()

	migrations := []plugin.Migration{
		{Version: 1, Description: "create devices table",
			Up: createTable("CREATE TABLE pilot_devices (id INTEGER PRIMARY KEY, name TEXT)")},
		{Version: 2, Description: "add site column",
			Up: createTable("ALTER TABLE pilot_devices ADD COLUMN site TEXT")},
	}

	if err := s.Migrate(ctx, "pilot", migrations); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	if _, err := s.DB().ExecContext(ctx,
		"INSERT INTO pilot_devices (id, name, site) VALUES (1, 'compressor7', 'plant-3')"); err != nil {
		t.Fatalf("insert after migration: %v", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM _migrations WHERE plugin_name = 'pilot'").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("tracked migrations = %d, want 2", count)
	}
}

func TestMigrateSkipsApplied(t *testing.T) {
	s := openStore(t)
	ctx := t.Context()

	calls := 0
	migrations := []plugin.Migration{
		{Version: 1, Description: "create table", Up: func(tx *sql.Tx) error {
			calls++
			_, err := tx.Exec("CREATE TABLE once_only (id INTEGER)")
			return err
		}},
	}

	for i := 0; i < 2; i++ {
		if err := s.Migrate(ctx, "pilot", migrations); err != nil {
			t.Fatalf("Migrate run %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Errorf("Up calls = %d, want 1", calls)
	}
}

func TestMigratePerPluginTracking(t *testing.T) {
	s := openStore(t)
	ctx := t.Context()

	if err := s.Migrate(ctx, "pilot", []plugin.Migration{
		{Version: 1, Description: "pilot table", Up: createTable("CREATE TABLE pilot_data (id INTEGER)")},
	}); err != nil {
		t.Fatalf("pilot: %v", err)
	}
	if err := s.Migrate(ctx, "telemetry", []plugin.Migration{
		{Version: 1, Description: "telemetry table", Up: createTable("CREATE TABLE telemetry_data (id INTEGER)")},
	}); err != nil {
		t.Fatalf("telemetry: %v", err)
	}

	for _, table := range []string{"pilot_data", "telemetry_data"} {
		var name string
		err := s.DB().QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestMigrateFailureNotRecorded(t *testing.T) {
	s := openStore(t)
	ctx := t.Context()

	migrations := []plugin.Migration{
		{Version: 1, Description: "good", Up: createTable("CREATE TABLE keep_me (id INTEGER)")},
		{Version: 2, Description: "broken", Up: createTable("NOT VALID SQL")},
	}

	if err := s.Migrate(ctx, "pilot", migrations); err == nil {
		t.Fatal("expected error from broken migration")
	}

	// Version 1 committed, version 2 left unrecorded for a retry.
	var count int
	if err := s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM _migrations WHERE plugin_name = 'pilot'").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("tracked migrations = %d, want 1", count)
	}
}

func TestClose(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "close.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.DB().PingContext(t.Context()); err == nil {
		t.Error("ping after Close should fail")
	}
}

func TestCheckVersion(t *testing.T) {
	t.Run("first run records version", func(t *testing.T) {
		s := openStore(t)
		if err := s.CheckVersion(t.Context(), "0.4.0"); err != nil {
			t.Fatalf("CheckVersion: %v", err)
		}
		var stored string
		if err := s.DB().QueryRowContext(t.Context(),
			"SELECT app_version FROM _schema_meta WHERE id = 1").Scan(&stored); err != nil {
			t.Fatalf("query: %v", err)
		}
		if stored != "0.4.0" {
			t.Errorf("stored = %q", stored)
		}
	})

	t.Run("same and newer binary pass", func(t *testing.T) {
		s := openStore(t)
		for _, v := range []string{"0.4.0", "0.4.0", "0.4.1", "0.5.0"} {
			if err := s.CheckVersion(t.Context(), v); err != nil {
				t.Fatalf("CheckVersion(%s): %v", v, err)
			}
		}
	})

	t.Run("older binary rejected", func(t *testing.T) {
		s := openStore(t)
		if err := s.CheckVersion(t.Context(), "0.5.0"); err != nil {
			t.Fatalf("seed: %v", err)
		}
		err := s.CheckVersion(t.Context(), "0.4.0")
		if !errors.Is(err, ErrNewerSchema) {
			t.Fatalf("err = %v, want ErrNewerSchema", err)
		}
	})

	t.Run("dev passes both directions", func(t *testing.T) {
		s := openStore(t)
		for _, v := range []string{"dev", "0.5.0", "dev"} {
			if err := s.CheckVersion(t.Context(), v); err != nil {
				t.Fatalf("CheckVersion(%s): %v", v, err)
			}
		}
	})
}
