package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	chstore "lending-loop-lab/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the database named in the DSN if needed
// and applies the embedded schema files in lexical order. The returned
// connection targets that database and is ready for the series stores.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}

	adminConn, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	if err := adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		adminConn.Close()
		return nil, fmt.Errorf("create database %s: %w", dbName, err)
	}
	if err := adminConn.Close(); err != nil {
		return nil, fmt.Errorf("close admin connection: %w", err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	files, err := sqlFiles("clickhouse")
	if err != nil {
		conn.Close()
		return nil, err
	}

	for _, name := range files {
		if err := applyClickhouseFile(ctx, conn, name); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return conn, nil
}

// applyClickhouseFile runs every statement in one embedded migration.
// The driver has no multi-statement Exec, so the file is split first.
func applyClickhouseFile(ctx context.Context, conn *chstore.Conn, name string) error {
	data, err := fs.ReadFile(schemaFS, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	stmts, err := splitStatements(string(data))
	if err != nil {
		return fmt.Errorf("split migration %s: %w", name, err)
	}
	for _, stmt := range stmts {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// splitStatements breaks a migration file into semicolon-terminated
// statements. Lines starting with -- are dropped first. The scan tracks
// single-quoted literals (with '' escapes) only to reject a semicolon
// inside one, since such a file would be split incorrectly; clickhouse
// migrations must keep semicolons out of string literals and use -- style
// comments only.
func splitStatements(input string) ([]string, error) {
	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}
	sql := strings.Join(kept, "\n")

	var stmts []string
	var b strings.Builder
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch ch {
		case '\'':
			if inString && i+1 < len(sql) && sql[i+1] == '\'' {
				b.WriteString("''")
				i++
				continue
			}
			inString = !inString
			b.WriteByte(ch)
		case ';':
			if inString {
				return nil, fmt.Errorf("semicolon inside string literal")
			}
			if stmt := strings.TrimSpace(b.String()); stmt != "" {
				stmts = append(stmts, stmt)
			}
			b.Reset()
		default:
			b.WriteByte(ch)
		}
	}
	if stmt := strings.TrimSpace(b.String()); stmt != "" {
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
