package store

import (
	"context"
	"database/sql/driver"
	"fmt"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/ebareke/cedernaes2018-analysis/internal/expr"
	"github.com/ebareke/cedernaes2018-analysis/internal/meth"
)

// WriteExpressionResults batch-inserts one tissue's differential-expression
// rows using the Appender API.
func (s *Store) WriteExpressionResults(run, tissue string, results []expr.Result) error {
	if len(results) == 0 {
		return nil
	}

	appender, cleanup, err := s.appender("expression_results")
	if err != nil {
		return err
	}
	defer cleanup()

	for _, r := range results {
		var name, entrez any
		if r.GeneName != nil {
			name = *r.GeneName
		}
		if r.EntrezID != nil {
			entrez = *r.EntrezID
		}
		if err := appender.AppendRow(
			run, tissue, r.GeneID,
			r.LogFC, r.LogCPM, r.LR, r.PValue, r.FDR,
			name, entrez,
		); err != nil {
			return fmt.Errorf("append expression result: %w", err)
		}
	}
	return appender.Flush()
}

// WriteRegions batch-inserts one tissue's called regions.
func (s *Store) WriteRegions(run, tissue string, regions []meth.Region) error {
	if len(regions) == 0 {
		return nil
	}

	appender, cleanup, err := s.appender("methylation_regions")
	if err != nil {
		return err
	}
	defer cleanup()

	for _, r := range regions {
		if err := appender.AppendRow(
			run, tissue, r.Chrom,
			int64(r.Start), int64(r.End), int32(r.Probes),
			r.MeanDiff, r.PValue, r.Genes, r.Feature,
		); err != nil {
			return fmt.Errorf("append region: %w", err)
		}
	}
	return appender.Flush()
}

func (s *Store) appender(table string) (*goduckdb.Appender, func(), error) {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return nil, nil, fmt.Errorf("get connection: %w", err)
	}

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", table)
		return err
	}); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("create appender: %w", err)
	}

	cleanup := func() {
		appender.Close()
		conn.Close()
	}
	return appender, cleanup, nil
}

// ExpressionRuns returns the distinct run labels present in the archive.
func (s *Store) ExpressionRuns() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT run FROM expression_results ORDER BY run`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
