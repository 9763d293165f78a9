package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"tender-scraper/models"
)

// tenderColumns are the insertable columns of the tenders table, in
// argument order.
var tenderColumns = []string{
	"notice_number", "description", "country", "publication_date", "deadline",
	"buyer_name", "buyer_email", "tender_id", "organisations",
	"value_original", "currency_original", "value_converted",
	"start_date", "end_date", "pdf_link", "error", "extra", "run_id",
}

// PostgresWriter persists merged records to PostgreSQL.
type PostgresWriter struct {
	db    *sql.DB
	runID string
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter. Rows written are tagged with runID.
func NewPostgresWriter(dsn, runID string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db, runID: runID}
	if err := pw.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS tenders (
			id                SERIAL PRIMARY KEY,
			notice_number     TEXT        UNIQUE NOT NULL,
			description       TEXT        NOT NULL DEFAULT '',
			country           TEXT        NOT NULL DEFAULT '',
			publication_date  TEXT        NOT NULL DEFAULT '',
			deadline          TEXT        NOT NULL DEFAULT '',
			buyer_name        TEXT        NOT NULL DEFAULT '',
			buyer_email       TEXT        NOT NULL DEFAULT '',
			tender_id         TEXT        NOT NULL DEFAULT '',
			organisations     JSONB       NOT NULL DEFAULT '[]',
			value_original    TEXT        NOT NULL DEFAULT '',
			currency_original TEXT        NOT NULL DEFAULT '',
			value_converted   TEXT        NOT NULL DEFAULT '',
			start_date        TEXT        NOT NULL DEFAULT '',
			end_date          TEXT        NOT NULL DEFAULT '',
			pdf_link          TEXT        NOT NULL DEFAULT '',
			error             TEXT,
			extra             JSONB       NOT NULL DEFAULT '{}',
			run_id            TEXT        NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_tenders_country ON tenders(country);
		CREATE INDEX IF NOT EXISTS idx_tenders_run_id  ON tenders(run_id);
	`)
	return err
}

// Write upserts records by notice number in batches.
func (pw *PostgresWriter) Write(records []models.MergedRecord) error {
	const batchSize = 50
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		query, args := buildUpsert(records[i:end], pw.runID)
		if _, err := pw.db.Exec(query, args...); err != nil {
			return fmt.Errorf("postgres: upsert batch: %w", err)
		}
	}
	return nil
}

// buildUpsert renders a multi-row INSERT ... ON CONFLICT for batch.
func buildUpsert(batch []models.MergedRecord, runID string) (string, []any) {
	n := len(tenderColumns)
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*n)

	for idx := range batch {
		r := &batch[idx]
		placeholders := make([]string, n)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", idx*n+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")

		valueArgs = append(valueArgs,
			r.Identifier, r.Description, r.Country, r.PublicationDate, r.Deadline,
			r.BuyerName, r.BuyerEmail, r.TenderID, r.OrganisationsJSON(),
			r.ValueOriginal, r.CurrencyOriginal, r.ValueConverted,
			r.StartDate, r.EndDate, r.PDFLink, nullString(r.Error), extraJSON(r.Extra), runID,
		)
	}

	updates := make([]string, 0, n-1)
	for _, col := range tenderColumns[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	updates = append(updates, "updated_at = NOW()")

	query := fmt.Sprintf(`
		INSERT INTO tenders (%s)
		VALUES %s
		ON CONFLICT (notice_number) DO UPDATE SET %s
	`, strings.Join(tenderColumns, ", "), strings.Join(valueStrings, ","), strings.Join(updates, ", "))

	return query, valueArgs
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchRun retrieves the records stored by this writer's run, used by the
// report service.
func (pw *PostgresWriter) FetchRun() ([]models.MergedRecord, error) {
	rows, err := pw.db.Query(`
		SELECT `+strings.Join(tenderColumns[:len(tenderColumns)-1], ", ")+`
		FROM tenders
		WHERE run_id = $1
		ORDER BY id
	`, pw.runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch run: %w", err)
	}
	defer rows.Close()

	var records []models.MergedRecord
	for rows.Next() {
		var (
			r        models.MergedRecord
			orgs     []byte
			extra    []byte
			errorCol sql.NullString
		)
		if err := rows.Scan(
			&r.Identifier, &r.Description, &r.Country, &r.PublicationDate, &r.Deadline,
			&r.BuyerName, &r.BuyerEmail, &r.TenderID, &orgs,
			&r.ValueOriginal, &r.CurrencyOriginal, &r.ValueConverted,
			&r.StartDate, &r.EndDate, &r.PDFLink, &errorCol, &extra,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		if err := json.Unmarshal(orgs, &r.Organisations); err != nil {
			return nil, fmt.Errorf("postgres: decode organisations of %s: %w", r.Identifier, err)
		}
		if err := json.Unmarshal(extra, &r.Extra); err != nil {
			return nil, fmt.Errorf("postgres: decode extra of %s: %w", r.Identifier, err)
		}
		r.Error = errorCol.String
		records = append(records, r)
	}
	return records, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func extraJSON(extra map[string]string) string {
	if len(extra) == 0 {
		return "{}"
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "{}"
	}
	return string(data)
}
