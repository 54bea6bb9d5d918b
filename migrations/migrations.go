// Package migrations embeds the ClickHouse schema migrations.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"log"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

// Setup points goose at the embedded migrations with the ClickHouse dialect
func Setup() error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect("clickhouse"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// Up applies all pending migrations
func Up(db *sql.DB) error {
	if err := Setup(); err != nil {
		return err
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Commands lists the subcommands accepted by Run
var Commands = []string{"up", "down", "status", "version"}

// Run executes a goose subcommand against db
func Run(db *sql.DB, command string) error {
	var op func() error
	switch command {
	case "up":
		op = func() error { return goose.Up(db, ".") }
	case "down":
		op = func() error { return goose.Down(db, ".") }
	case "status":
		op = func() error { return goose.Status(db, ".") }
	case "version":
		op = func() error {
			version, err := goose.GetDBVersion(db)
			if err != nil {
				return err
			}
			log.Printf("Current migration version: %d", version)
			return nil
		}
	default:
		return fmt.Errorf("unknown command %q, available: %v", command, Commands)
	}

	if err := Setup(); err != nil {
		return err
	}
	if err := op(); err != nil {
		return fmt.Errorf("%s failed: %w", command, err)
	}
	return nil
}
