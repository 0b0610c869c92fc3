package storage

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/nutrition-bot/internal/logging"
)

// RunClickHouseMigrations applies the embedded ClickHouse schema files in
// name order. Statements are written with IF NOT EXISTS so reruns are safe.
func RunClickHouseMigrations(ctx context.Context, db *ClickHouseDB) error {
	return runClickHouseMigrations(ctx, db.Exec, clickhouseMigrations)
}

type execFunc func(ctx context.Context, query string, args ...interface{}) error

func runClickHouseMigrations(ctx context.Context, exec execFunc, fsys fs.FS) error {
	files, err := fs.Glob(fsys, "migrations/clickhouse/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list clickhouse migrations: %w", err)
	}
	sort.Strings(files)

	if len(files) == 0 {
		logging.Info("No ClickHouse migration files found")
		return nil
	}

	for _, filename := range files {
		content, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		for i, stmt := range splitSQLStatements(string(content)) {
			logging.WithFields(map[string]interface{}{
				"file":      filename,
				"statement": i + 1,
				"sql":       truncate(stmt, 80),
			}).Debug("Executing ClickHouse statement")

			if err := exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute statement %d in %s: %w", i+1, filename, err)
			}
		}

		logging.WithField("file", filename).Info("Applied ClickHouse migration")
	}

	return nil
}

// splitSQLStatements splits SQL content into individual statements,
// dropping comment-only lines and trailing semicolons.
func splitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}

		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()

	return statements
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
