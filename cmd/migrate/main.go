package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// versionTable records applied migration files so reruns skip them.
const versionTable = "newsletter_schema_migrations"

func main() {
	_ = godotenv.Load()

	listOnly := flag.Bool("list", false, "list newsletter tables and applied migrations")
	flag.Parse()
	dir := "migrations"
	if flag.NArg() > 0 {
		dir = flag.Arg(0)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}

	if *listOnly {
		if err := list(db); err != nil {
			log.Fatal(err)
		}
		return
	}

	files, err := migrationFiles(dir)
	if err != nil {
		log.Fatalf("read migrations dir %s: %v", dir, err)
	}
	applied, err := apply(db, dir, files)
	log.Printf("Applied %d of %d migrations", applied, len(files))
	if err != nil {
		log.Fatal(err)
	}
}

// migrationFiles returns the .sql files of dir in apply order.
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// apply runs every file not yet recorded in versionTable, each in its own
// transaction together with its version row. It stops at the first failure.
func apply(db *sql.DB, dir string, files []string) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + versionTable + ` (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return 0, fmt.Errorf("create %s: %w", versionTable, err)
	}
	done, err := appliedVersions(db)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, f := range files {
		if done[f] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return n, fmt.Errorf("read %s: %w", f, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return n, fmt.Errorf("begin %s: %w", f, err)
		}
		if strings.TrimSpace(string(data)) != "" {
			if _, err := tx.Exec(string(data)); err != nil {
				tx.Rollback()
				return n, fmt.Errorf("apply %s: %w", f, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO `+versionTable+` (version) VALUES ($1)`, f); err != nil {
			tx.Rollback()
			return n, fmt.Errorf("record %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return n, fmt.Errorf("commit %s: %w", f, err)
		}
		log.Printf("  %s OK", f)
		n++
	}
	return n, nil
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(`SELECT version FROM ` + versionTable)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", versionTable, err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

func list(db *sql.DB) error {
	rows, err := db.Query(`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename LIKE 'newsletter_%' ORDER BY tablename`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		fmt.Println("table    ", t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	done, err := appliedVersions(db)
	if err != nil {
		return err
	}
	versions := make([]string, 0, len(done))
	for v := range done {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	for _, v := range versions {
		fmt.Println("migration", v)
	}
	return nil
}
