package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tender-scraper/models"
)

// utf8BOM lets spreadsheet tools detect the encoding of non-ASCII names.
const utf8BOM = "\uFEFF"

// CSVWriter writes merged records to a CSV file. The header is written with
// the first batch: the fixed columns followed by that batch's extra fields.
// It is safe for concurrent use.
type CSVWriter struct {
	mu        sync.Mutex
	file      *os.File
	writer    *csv.Writer
	extraKeys []string
	header    bool
}

// NewCSVWriter creates (or truncates) the CSV file at the given path.
// Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	if _, err := f.WriteString(utf8BOM); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write BOM: %w", err)
	}

	return &CSVWriter{file: f, writer: csv.NewWriter(f)}, nil
}

// Write appends records, one row each.
func (c *CSVWriter) Write(records []models.MergedRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.header {
		c.extraKeys = models.ExtraKeys(records)
		header := append(append([]string{}, models.Columns...), c.extraKeys...)
		if err := c.writer.Write(header); err != nil {
			return fmt.Errorf("csv: write header: %w", err)
		}
		c.header = true
	}

	for i := range records {
		if err := c.writer.Write(records[i].Row(c.extraKeys)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
