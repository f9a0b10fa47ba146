// Package store archives pipeline results in a local DuckDB database so
// past runs stay queryable without re-parsing the flat-file exports.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection for archiving run results.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path. Use an empty
// string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS expression_results (
		run VARCHAR,
		tissue VARCHAR,
		gene_id VARCHAR,
		log_fc DOUBLE,
		log_cpm DOUBLE,
		lr DOUBLE,
		pvalue DOUBLE,
		fdr DOUBLE,
		gene_name VARCHAR,
		entrez_id VARCHAR
	)`); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS methylation_regions (
		run VARCHAR,
		tissue VARCHAR,
		chrom VARCHAR,
		start_ BIGINT,
		end_ BIGINT,
		n_probes INTEGER,
		mean_diff DOUBLE,
		pvalue DOUBLE,
		genes VARCHAR,
		feature VARCHAR
	)`)
	return err
}
