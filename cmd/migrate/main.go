// migrate applies the DDL statements of the migrations directory to a Cloud
// Spanner database. Files are applied in lexical order.
//
// Usage (emulator):
//
//	SPANNER_EMULATOR_HOST=localhost:9010 \
//	SPANNER_DATABASE=projects/test-project/instances/test-instance/databases/test-db \
//	go run ./cmd/migrate
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	database "cloud.google.com/go/spanner/admin/database/apiv1"
	"cloud.google.com/go/spanner/admin/database/apiv1/databasepb"

	"github.com/adevinta/product-ingestor/log"
)

const timeout = 2 * time.Minute

func main() {
	dir := flag.String("dir", "migrations", "directory with the DDL files")
	flag.Parse()

	db := os.Getenv("SPANNER_DATABASE")
	if db == "" {
		log.Fatalf("migrate: missing spanner database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := run(ctx, db, *dir); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

// run applies the migrations in dir to db.
func run(ctx context.Context, db, dir string) error {
	stmts, err := readMigrations(dir)
	if err != nil {
		return err
	}
	if len(stmts) == 0 {
		return fmt.Errorf("no DDL statements found in %v", dir)
	}

	admin, err := database.NewDatabaseAdminClient(ctx)
	if err != nil {
		return fmt.Errorf("could not create database admin client: %w", err)
	}
	defer admin.Close()

	op, err := admin.UpdateDatabaseDdl(ctx, &databasepb.UpdateDatabaseDdlRequest{
		Database:   db,
		Statements: stmts,
	})
	if err != nil {
		return fmt.Errorf("could not update database DDL: %w", err)
	}

	if err := op.Wait(ctx); err != nil {
		return fmt.Errorf("error waiting for DDL update: %w", err)
	}

	log.Info.Printf("migrate: applied %v DDL statements to %v", len(stmts), db)
	return nil
}

// readMigrations returns the DDL statements of the .sql files in dir.
func readMigrations(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("invalid migrations dir: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files")
	}
	sort.Strings(files)

	var stmts []string
	for _, f := range files {
		s, err := readDDLStatements(f)
		if err != nil {
			return nil, fmt.Errorf("could not read %v: %w", f, err)
		}
		stmts = append(stmts, s...)
	}
	return stmts, nil
}

// readDDLStatements splits the file at path into statements. Comment lines
// starting with "--" are ignored.
func readDDLStatements(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n") {
		if strings.HasPrefix(strings.TrimSpace(l), "--") {
			continue
		}
		lines = append(lines, l)
	}

	var stmts []string
	for _, p := range strings.Split(strings.Join(lines, "\n"), ";") {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}
