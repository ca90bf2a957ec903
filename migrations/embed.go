// Package migrations embeds the SQL schema files and applies them in
// lexical order.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var embeddedFiles embed.FS

// File is one embedded migration
type File struct {
	Name string
	SQL  string
}

// Ordered returns the embedded migrations sorted by file name
func Ordered() ([]File, error) {
	entries, err := fs.ReadDir(embeddedFiles, ".")
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		body, err := embeddedFiles.ReadFile(entry.Name())
		if err != nil {
			return nil, err
		}
		files = append(files, File{Name: entry.Name(), SQL: string(body)})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Apply runs every migration that has not been recorded in
// schema_migrations yet
func Apply(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	files, err := Ordered()
	if err != nil {
		return err
	}

	for _, file := range files {
		var applied bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, file.Name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", file.Name, err)
		}
		if applied {
			continue
		}

		if _, err := db.ExecContext(ctx, file.SQL); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Name, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_migrations (name) VALUES ($1)`, file.Name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", file.Name, err)
		}
	}
	return nil
}
