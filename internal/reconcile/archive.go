package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// Archiver exports a completed run's findings to a columnar Parquet file
// under dir, purely for downstream analytics (§4.10.a): the DB-resident
// Run/Finding/Case rows remain the authoritative record.
type Archiver struct {
	dir string
}

// NewArchiver constructs an archiver rooted at dir, creating it if needed.
func NewArchiver(dir string) (*Archiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("reconcile: ensure archive dir: %w", err)
	}
	return &Archiver{dir: dir}, nil
}

type findingRow struct {
	RunID               string `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Kind                string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	AccountID           string `parquet:"name=account_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ComputedBalance     int64  `parquet:"name=computed_balance, type=INT64"`
	MaterializedBalance int64  `parquet:"name=materialized_balance, type=INT64"`
	DiscrepancyCents    int64  `parquet:"name=discrepancy_cents, type=INT64"`
	Severity            string `parquet:"name=severity, type=BYTE_ARRAY, convertedtype=UTF8"`
	Detail              string `parquet:"name=detail, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt           string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Archive writes run's findings to <dir>/<run_id>.parquet and returns the
// path written.
func (a *Archiver) Archive(run Run, findings []Finding) (string, error) {
	path := filepath.Join(a.dir, fmt.Sprintf("%s.parquet", run.ID))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("reconcile: create parquet file: %w", err)
	}
	defer file.Close()
	fw := writerfile.NewWriterFile(file)

	pw, err := writer.NewParquetWriter(fw, new(findingRow), 1)
	if err != nil {
		return "", fmt.Errorf("reconcile: parquet schema: %w", err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, f := range findings {
		row := findingRow{
			RunID:               f.RunID,
			Kind:                f.Kind,
			AccountID:           f.AccountID,
			ComputedBalance:     f.ComputedBalance,
			MaterializedBalance: f.MaterializedBalance,
			DiscrepancyCents:    f.DiscrepancyCents,
			Severity:            string(f.Severity),
			Detail:              f.Detail,
			CreatedAt:           f.CreatedAt.Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return "", fmt.Errorf("reconcile: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return "", fmt.Errorf("reconcile: parquet flush: %w", err)
	}
	return path, nil
}
