// cmd/dbtools/migrate/main.go
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/codr1/courtbook/internal/db"
)

func main() {
	var (
		driver         = flag.String("driver", "sqlite", "Database driver (sqlite, postgres)")
		dbPath         = flag.String("db", "", "Path to SQLite database")
		dsn            = flag.String("dsn", os.Getenv("DATABASE_DSN"), "Postgres DSN (default $DATABASE_DSN)")
		migrationsPath = flag.String("migrations", "", "Optional migrations directory; the embedded migrations are used when empty")
		command        = flag.String("command", "", "Command to run (up, down, version, steps, force)")
		n              = flag.Int("n", 0, "Step count for steps, version for force")
	)
	flag.Parse()

	if *command == "" {
		flag.Usage()
		os.Exit(1)
	}

	m, err := open(*driver, *dbPath, *dsn, *migrationsPath)
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	// Execute command
	switch *command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("Successfully ran migrations up")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Successfully ran migrations down")
	case "steps":
		if *n == 0 {
			log.Fatalf("steps needs -n")
		}
		if err := m.Steps(*n); err != nil {
			log.Fatalf("Migration steps failed: %v", err)
		}
		log.Printf("Successfully applied %d steps\n", *n)
	case "force":
		if err := m.Force(*n); err != nil {
			log.Fatalf("Force version failed: %v", err)
		}
		log.Printf("Forced version %d\n", *n)
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("Version: none")
			return
		}
		if err != nil {
			log.Fatalf("Get version failed: %v", err)
		}
		fmt.Printf("Version: %d, Dirty: %v\n", version, dirty)
	default:
		log.Fatalf("Unknown command: %s", *command)
	}
}

func open(driver, dbPath, dsn, migrationsPath string) (*migrate.Migrate, error) {
	var (
		dialect db.Dialect
		dbURL   string
	)
	switch driver {
	case "sqlite":
		if dbPath == "" {
			return nil, fmt.Errorf("-db is required for sqlite")
		}
		absDB, err := filepath.Abs(dbPath)
		if err != nil {
			return nil, fmt.Errorf("invalid database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absDB), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dialect, dbURL = db.DialectSQLite, "sqlite3://"+absDB
		dsn = absDB
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("-dsn or DATABASE_DSN is required for postgres")
		}
		dialect, dbURL = db.DialectPostgres, dsn
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	if migrationsPath != "" {
		absMigrations, err := filepath.Abs(migrationsPath)
		if err != nil {
			return nil, fmt.Errorf("invalid migrations path: %w", err)
		}
		if _, err := os.Stat(absMigrations); err != nil {
			return nil, fmt.Errorf("migrations directory: %w", err)
		}
		return migrate.New("file://"+absMigrations, dbURL)
	}

	sqlDriver := "sqlite3"
	if dialect == db.DialectPostgres {
		sqlDriver = "postgres"
	}
	sqlDB, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db.NewMigrator(sqlDB, dialect)
}
